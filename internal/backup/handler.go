package backup

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/motorledger/motorledger/internal/ledger"
	"github.com/motorledger/motorledger/internal/platform/httpx"
)

const workbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler exposes snapshot download and restore upload.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs the backup HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches the backup routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/backup", h.download)
	r.Post("/restore", h.restore)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	stamp := time.Now().Format("20060102_150405")
	if r.URL.Query().Get("format") == "json" {
		data, err := h.service.SnapshotJSON(r.Context())
		if err != nil {
			h.logger.Error("snapshot json", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		httpx.Attachment(w, "motorledger_backup_"+stamp+".json", "application/json")
		_, _ = w.Write(data)
		return
	}

	data, err := h.service.SnapshotWorkbook(r.Context())
	if err != nil {
		h.logger.Error("snapshot workbook", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.Attachment(w, "motorledger_backup_"+stamp+".xlsx", workbookContentType)
	_, _ = w.Write(data)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	artifact, err := io.ReadAll(r.Body)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "unreadable artifact")
		return
	}
	ok, err := h.service.Restore(r.Context(), artifact)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidFormat) {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Format", err.Error())
			return
		}
		h.logger.Error("restore", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"restored": ok})
}
