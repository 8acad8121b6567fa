package handlers

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/zerodaily/nexus/internal/storage"
)

// ArtifactHandler serves generated pipeline artifacts from the sandboxed
// artifact store.
type ArtifactHandler struct {
	files *storage.FileStore
}

// NewArtifactHandler creates a new artifact handler.
func NewArtifactHandler(files *storage.FileStore) *ArtifactHandler {
	return &ArtifactHandler{files: files}
}

// RegisterFileServer registers the artifact file server routes. Artifacts
// live at /artifacts/{date}/{stage}/{filename}.
func (h *ArtifactHandler) RegisterFileServer(router chi.Router) {
	router.Get("/artifacts/{date}/{stage}/{filename}", h.ServeArtifact)
	router.Head("/artifacts/{date}/{stage}/{filename}", h.ServeArtifact) // Support HEAD requests for probes
}

// ServeArtifact serves one artifact file.
func (h *ArtifactHandler) ServeArtifact(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	stage := chi.URLParam(r, "stage")
	filename := chi.URLParam(r, "filename")

	// Validate segments before touching the filesystem.
	if _, err := storage.ArtifactPath(date, stage, filename); err != nil {
		http.Error(w, "invalid artifact path", http.StatusBadRequest)
		return
	}

	file, info, err := h.files.Open(date, stage, filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "artifact not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to open artifact", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", storage.ContentTypeFromPath(filename))
	// Generated media never changes once written; let players cache it.
	w.Header().Set("Cache-Control", "public, max-age=86400")

	http.ServeContent(w, r, filename, info.ModTime(), file)
}
