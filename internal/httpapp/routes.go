package httpapp

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/anontester/ripweb/internal/httpapp/dto"
	"github.com/anontester/ripweb/internal/registry"
)

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req dto.SearchRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.respondError(w, http.StatusUnprocessableEntity, dto.ToResponse(errs))
		return
	}

	items, err := h.Ripper.Search(r.Context(), req.Source, req.MediaType, req.Query, req.Limit)
	if err != nil {
		h.Logger.Error("Search failed", "source", req.Source, "query", req.Query, "error", err)
		h.respondError(w, http.StatusBadGateway, "search failed")
		return
	}
	h.Registry.MarkDownloaded(items)

	h.respondJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	var req dto.DownloadRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.respondError(w, http.StatusUnprocessableEntity, dto.ToResponse(errs))
		return
	}

	jobs := h.Registry.Enqueue(req.Items)
	// The version lets the client scope batch-completion detection to
	// snapshots at least as fresh as this enqueue.
	h.respondJSON(w, http.StatusAccepted, map[string]any{"jobs": jobs, "version": h.Registry.Version()})
}

func (h *Handler) DownloadURLs(w http.ResponseWriter, r *http.Request) {
	var req dto.URLDownloadRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.respondError(w, http.StatusUnprocessableEntity, dto.ToResponse(errs))
		return
	}

	jobs := h.Registry.EnqueueURLs(req.URLs)
	h.respondJSON(w, http.StatusAccepted, map[string]any{"jobs": jobs, "version": h.Registry.Version()})
}

func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.Registry.Snapshot())
}

func (h *Handler) QueueAction(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	action := chi.URLParam(r, "action")

	var err error
	switch action {
	case "retry":
		err = h.Registry.Retry(jobID)
	case "abort":
		err = h.Registry.Abort(jobID)
	case "save":
		err = h.Registry.Save(jobID)
	case "force":
		err = h.Registry.ForceRedownload(jobID)
	default:
		h.respondError(w, http.StatusNotFound, "unknown action")
		return
	}

	switch {
	case errors.Is(err, registry.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, registry.ErrJobRunning):
		h.respondError(w, http.StatusConflict, "job is in progress")
	case err != nil:
		h.Logger.Error("Queue action failed", "job_id", jobID, "action", action, "error", err)
		h.respondError(w, http.StatusInternalServerError, "action failed")
	default:
		// Actions answer with the refreshed snapshot so the caller does not
		// need a follow-up poll.
		h.respondJSON(w, http.StatusOK, h.Registry.Snapshot())
	}
}

func (h *Handler) SavedList(w http.ResponseWriter, r *http.Request) {
	items, err := h.Registry.SavedList()
	if err != nil {
		h.Logger.Error("Failed to list saved items", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load saved items")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"saved": items})
}

func (h *Handler) SaveItem(w http.ResponseWriter, r *http.Request) {
	var req dto.SaveItemRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.respondError(w, http.StatusUnprocessableEntity, dto.ToResponse(errs))
		return
	}

	if err := h.Registry.SaveItem(req.ToSavedItem()); err != nil {
		h.Logger.Error("Failed to save item", "source", req.Source, "item_id", req.ID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to save item")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) SavedDownload(w http.ResponseWriter, r *http.Request) {
	var req dto.SavedDownloadRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	jobs, err := h.Registry.DownloadSaved(req.Keys())
	if err != nil {
		h.Logger.Error("Failed to download saved items", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to enqueue saved items")
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]any{"jobs": jobs, "version": h.Registry.Version()})
}

func (h *Handler) SavedRemove(w http.ResponseWriter, r *http.Request) {
	var req dto.SavedRemoveRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		h.respondError(w, http.StatusUnprocessableEntity, dto.ToResponse(errs))
		return
	}

	if err := h.Registry.RemoveSaved(req.Key()); err != nil {
		h.Logger.Error("Failed to remove saved item", "source", req.Source, "item_id", req.ID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to remove saved item")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Settings.Export()
	if err != nil {
		h.Logger.Error("Failed to export config", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load config")
		return
	}
	h.respondJSON(w, http.StatusOK, cfg)
}

func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var updates map[string]map[string]any
	if !h.decodeBody(w, r, &updates) {
		return
	}

	cfg, verrs, err := h.Settings.Update(updates)
	if err != nil {
		h.Logger.Error("Failed to update config", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to update config")
		return
	}
	if len(verrs) > 0 {
		h.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": verrs})
		return
	}
	h.respondJSON(w, http.StatusOK, cfg)
}

func (h *Handler) GetAppSettings(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.Settings.LoadAppSettings())
}

func (h *Handler) UpdateAppSettings(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !h.decodeBody(w, r, &patch) {
		return
	}

	s, err := h.Settings.UpdateAppSettings(patch)
	if err != nil {
		h.Logger.Error("Failed to update app settings", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to update app settings")
		return
	}
	// Debug logging takes effect immediately, no restart needed.
	h.Logger.SetDebug(s.DebugLogging)
	h.respondJSON(w, http.StatusOK, s)
}
