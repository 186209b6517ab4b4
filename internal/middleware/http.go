package middleware

import (
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"grievancedesk/internal/auth"
	"grievancedesk/internal/models"
	"grievancedesk/internal/rate"
	"grievancedesk/internal/service"
	"grievancedesk/internal/util"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		r = r.WithContext(WithRequestID(r.Context(), rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// Authn extracts the bearer token, verifies it and re-resolves the subject.
// Every failure mode is a 401: missing header, malformed header, bad
// signature, expiry, and a subject that no longer exists.
func Authn(svc *service.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				util.WriteError(w, http.StatusUnauthorized, "authentication required", RequestID(r.Context()))
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				util.WriteError(w, http.StatusUnauthorized, "authorization header must be 'Bearer <token>'", RequestID(r.Context()))
				return
			}
			u, err := svc.Authenticate(r.Context(), parts[1])
			if err != nil {
				msg := "invalid token"
				switch {
				case errors.Is(err, auth.ErrTokenExpired):
					msg = "token expired"
				case errors.Is(err, service.ErrUnknownSubject):
					msg = "unknown subject"
				}
				util.WriteError(w, http.StatusUnauthorized, msg, RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), u)))
		})
	}
}

// RequireRole allows only the listed roles past. Without an authenticated
// subject in context the answer is 401, not 403.
func RequireRole(allowed ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := Subject(r.Context())
			if !ok {
				util.WriteError(w, http.StatusUnauthorized, "authentication required", RequestID(r.Context()))
				return
			}
			for _, role := range allowed {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			util.WriteError(w, http.StatusForbidden, "insufficient permissions", RequestID(r.Context()))
		})
	}
}

func RateLimit(l *rate.Limiter, route string, limit int, window time.Duration, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + ":" + ClientIP(r, trustProxy)
			if !l.Allow(key, limit, window) {
				util.WriteError(w, http.StatusTooManyRequests, "too many requests", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		log.Printf("request method=%s path=%s status=%d duration_ms=%d request_id=%s remote_ip=%s",
			r.Method, r.URL.Path, sr.status, time.Since(start).Milliseconds(), RequestID(r.Context()), ClientIP(r, false))
	})
}
