// Package httpapp exposes the JSON API and the event stream consumed by the
// browser panel.
package httpapp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/anontester/ripweb/internal/events"
	"github.com/anontester/ripweb/internal/logger"
	"github.com/anontester/ripweb/internal/registry"
	"github.com/anontester/ripweb/internal/ripper"
	"github.com/anontester/ripweb/internal/settings"
)

type Handler struct {
	Registry *registry.Registry
	Ripper   ripper.Ripper
	Settings *settings.Manager
	Broker   *events.Broker
	Logger   *logger.Logger
}

func NewHandler(reg *registry.Registry, rip ripper.Ripper, mgr *settings.Manager, broker *events.Broker, log *logger.Logger) *Handler {
	return &Handler{
		Registry: reg,
		Ripper:   rip,
		Settings: mgr,
		Broker:   broker,
		Logger:   log.WithComponent("http"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/search", h.Search)
		r.Post("/downloads", h.Download)
		r.Post("/url-downloads", h.DownloadURLs)

		r.Get("/queue", h.Queue)
		r.Post("/queue/{jobID}/{action}", h.QueueAction)

		r.Get("/saved", h.SavedList)
		r.Post("/saved", h.SaveItem)
		r.Post("/saved/download", h.SavedDownload)
		r.Post("/saved/remove", h.SavedRemove)

		r.Get("/config", h.GetConfig)
		r.Post("/config", h.UpdateConfig)
		r.Get("/app-settings", h.GetAppSettings)
		r.Post("/app-settings", h.UpdateAppSettings)
	})

	r.Get("/events/downloads", h.StreamEvents)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.Logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}

// decodeBody parses the JSON request body, answering 400 itself on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
