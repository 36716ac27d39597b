package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hearthside/hearthside/internal/storage"
)

// ObjectGetter streams stored blobs by key. Satisfied by
// *storage.ImageStore; tests use a fake.
type ObjectGetter interface {
	Get(ctx context.Context, key string) (*storage.Object, error)
}

// ImageHandler serves listing images from the object store.
type ImageHandler struct {
	store  ObjectGetter
	logger *slog.Logger
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(store ObjectGetter, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{
		store:  store,
		logger: logger,
	}
}

// Serve handles GET /images/*.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" || strings.Contains(key, "..") {
		writeError(w, http.StatusBadRequest, "INVALID_KEY", "Invalid image path")
		return
	}

	obj, err := h.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Image not found")
			return
		}
		h.logger.Error("image fetch failed", "key", key, "error", err)
		writeError(w, http.StatusBadGateway, "STORAGE_ERROR", "Image store unavailable")
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if obj.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	// Listing images are immutable blobs keyed by content id.
	w.Header().Set("Cache-Control", "public, max-age=86400")

	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Warn("image stream interrupted", "key", key, "error", err)
	}
}
