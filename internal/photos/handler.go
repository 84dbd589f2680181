package photos

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/motorledger/motorledger/internal/platform/httpx"
)

// maxPhotoBytes caps uploads; dealership photos are phone-camera sized.
const maxPhotoBytes = 10 << 20

// Handler exposes photo upload and delete.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler constructs the photo HTTP handler.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{store: store, logger: logger}
}

// MountRoutes attaches the photo routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.upload)
	r.Delete("/{name}", h.remove)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	file, header, err := r.FormFile("photo")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "multipart field 'photo' required")
		return
	}
	defer file.Close()

	url, err := h.store.Upload(header.Filename, file)
	if err != nil {
		h.logger.Warn("photo upload", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	deleted := h.store.Delete(chi.URLParam(r, "name"))
	httpx.JSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}
