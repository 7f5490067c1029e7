package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/homehubapp/homehub/internal/photos"
)

// PhotosProvider is the photo service surface the handler needs.
type PhotosProvider interface {
	Images(ctx context.Context, req photos.Request) photos.ImagesResult
	Albums(ctx context.Context) photos.AlbumsResult
}

// PhotosHandler serves the dashboard slideshow. Responses are always 200:
// misconfiguration and upstream failures come back as a degraded payload
// the slideshow can fall back from.
type PhotosHandler struct {
	svc    PhotosProvider
	logger *slog.Logger
}

func NewPhotosHandler(svc PhotosProvider, logger *slog.Logger) *PhotosHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PhotosHandler{svc: svc, logger: logger}
}

// Google handles GET /api/photos/google. `action=albums` lists albums for
// the settings UI; the default returns images, with optional `albumId`,
// `pageSize`, and `mode` (album|library) overrides.
func (h *PhotosHandler) Google(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	if q.Get("action") == "albums" {
		w.Header().Set("Cache-Control", "s-maxage=60, stale-while-revalidate=120")
		writeJSON(w, http.StatusOK, h.svc.Albums(ctx))
		return
	}

	req := photos.Request{
		AlbumID: q.Get("albumId"),
		Mode:    q.Get("mode"),
	}
	if n, err := strconv.Atoi(q.Get("pageSize")); err == nil && n > 0 {
		req.PageSize = n
	}

	w.Header().Set("Cache-Control", "s-maxage=300, stale-while-revalidate=600")
	writeJSON(w, http.StatusOK, h.svc.Images(ctx, req))
}
