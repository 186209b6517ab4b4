package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"grievancedesk/internal/config"
	"grievancedesk/internal/files"
	"grievancedesk/internal/middleware"
	"grievancedesk/internal/models"
	"grievancedesk/internal/rate"
	"grievancedesk/internal/service"
	"grievancedesk/internal/store"
	"grievancedesk/internal/util"
	"grievancedesk/internal/version"
)

type Handlers struct {
	cfg     config.Config
	svc     *service.Service
	limiter *rate.Limiter
}

func NewRouter(cfg config.Config, svc *service.Service) http.Handler {
	h := &Handlers{cfg: cfg, svc: svc, limiter: rate.NewLimiter()}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]any{"status": "ok", "version": version.Current()})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := h.svc.Ping(r.Context()); err != nil {
			util.WriteJSON(w, 503, map[string]any{"status": "degraded", "error": err.Error()})
			return
		}
		util.WriteJSON(w, 200, map[string]any{"status": "ready", "checked_at": time.Now().UTC().Format(time.RFC3339)})
	})

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.RateLimit(h.limiter, "register", 10, time.Minute, h.cfg.TrustProxy)).
			Post("/auth/register", h.Register)
		r.With(middleware.RateLimit(h.limiter, "login", 20, time.Minute, h.cfg.TrustProxy)).
			Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authn(h.svc))
			r.Get("/auth/me", h.Me)

			r.Route("/grievances", func(r chi.Router) {
				r.Get("/", h.ListGrievances)
				r.Post("/", h.CreateGrievance)
				r.Get("/stats", h.GrievanceStats)
				r.Get("/files/{filename}", h.FetchFile)
				r.With(middleware.RequireRole(models.RoleAdmin)).Patch("/{id}/status", h.UpdateGrievanceStatus)
				r.Get("/{id}", h.GetGrievance)
				r.Delete("/{id}", h.DeleteGrievance)
			})
		})
	})

	return r
}

// writeServiceError maps domain errors onto the HTTP taxonomy. Anything
// unrecognized is an internal error; its details go to the log, not the
// client.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.RequestID(r.Context())
	switch {
	case errors.Is(err, service.ErrCredentialsRequired),
		errors.Is(err, service.ErrMissingFields),
		errors.Is(err, service.ErrTooManyFiles),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, files.ErrTooLarge):
		util.WriteError(w, http.StatusBadRequest, err.Error(), reqID)
	case errors.Is(err, service.ErrInvalidCredentials):
		util.WriteError(w, http.StatusUnauthorized, err.Error(), reqID)
	case errors.Is(err, service.ErrForbidden):
		util.WriteError(w, http.StatusForbidden, "access denied", reqID)
	case errors.Is(err, store.ErrNotFound):
		util.WriteError(w, http.StatusNotFound, "not found", reqID)
	case errors.Is(err, store.ErrConflict):
		util.WriteError(w, http.StatusConflict, "user already exists", reqID)
	default:
		log.Printf("internal error request_id=%s: %v", reqID, err)
		util.WriteError(w, http.StatusInternalServerError, "internal error", reqID)
	}
}
