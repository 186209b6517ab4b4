package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"grievancedesk/internal/middleware"
	"grievancedesk/internal/service"
	"grievancedesk/internal/util"
)

func (h *Handlers) ListGrievances(w http.ResponseWriter, r *http.Request) {
	subject, _ := middleware.Subject(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.svc.List(r.Context(), subject, r.URL.Query().Get("status"), page, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) GrievanceStats(w http.ResponseWriter, r *http.Request) {
	subject, _ := middleware.Subject(r.Context())
	out, err := h.svc.Stats(r.Context(), subject)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, out)
}

func (h *Handlers) CreateGrievance(w http.ResponseWriter, r *http.Request) {
	subject, _ := middleware.Subject(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadTotalBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid multipart form", middleware.RequestID(r.Context()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var uploads []service.Upload
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			util.WriteError(w, http.StatusBadRequest, "unreadable attachment", middleware.RequestID(r.Context()))
			return
		}
		defer f.Close()
		uploads = append(uploads, service.Upload{
			OriginalName: fh.Filename,
			ContentType:  fh.Header.Get("Content-Type"),
			Reader:       f,
		})
	}

	g, err := h.svc.Create(r.Context(), subject, r.FormValue("title"), r.FormValue("description"), uploads)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, g)
}

func (h *Handlers) GetGrievance(w http.ResponseWriter, r *http.Request) {
	subject, _ := middleware.Subject(r.Context())
	g, err := h.svc.AuthorizeGrievance(r.Context(), subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, g)
}

func (h *Handlers) UpdateGrievanceStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid json", middleware.RequestID(r.Context()))
		return
	}
	g, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, g)
}

func (h *Handlers) DeleteGrievance(w http.ResponseWriter, r *http.Request) {
	subject, _ := middleware.Subject(r.Context())
	g, err := h.svc.AuthorizeGrievance(r.Context(), subject, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	// The record may vanish between the ownership check and the delete; the
	// resulting NotFound is surfaced as a plain 404.
	if err := h.svc.Delete(r.Context(), g); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) FetchFile(w http.ResponseWriter, r *http.Request) {
	subject, _ := middleware.Subject(r.Context())
	att, path, err := h.svc.FetchFile(r.Context(), subject, chi.URLParam(r, "filename"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if att.Mimetype != "" {
		w.Header().Set("Content-Type", att.Mimetype)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", att.OriginalName))
	http.ServeFile(w, r, path)
}
