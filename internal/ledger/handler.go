package ledger

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motorledger/motorledger/internal/platform/httpx"
)

// Handler exposes the entity-CRUD contract as a JSON API.
type Handler struct {
	coord  *Coordinator
	logger *slog.Logger
}

// NewHandler constructs the ledger HTTP handler.
func NewHandler(logger *slog.Logger, coord *Coordinator) *Handler {
	return &Handler{coord: coord, logger: logger}
}

// MountRoutes attaches one CRUD group per record kind.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, kind := range Kinds {
		kind := kind
		r.Route("/"+string(kind), func(r chi.Router) {
			r.Get("/", h.list(kind))
			r.Post("/", h.create(kind))
			r.Get("/{id}", h.getByID(kind))
			r.Put("/{id}", h.update(kind))
			r.Delete("/{id}", h.deleteByID(kind))
		})
	}
}

func (h *Handler) list(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := h.coord.List(r.Context(), kind)
		if err != nil {
			h.respondError(w, kind, "list", err)
			return
		}
		if recs == nil {
			recs = []Record{}
		}
		httpx.JSON(w, http.StatusOK, recs)
	}
}

func (h *Handler) getByID(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "id must be numeric")
			return
		}
		rec, err := h.coord.GetByID(r.Context(), kind, id)
		if err != nil {
			h.respondError(w, kind, "get", err)
			return
		}
		httpx.JSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) create(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := h.decode(kind, r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		rec.SetRecordID(0)
		created, err := h.coord.Create(r.Context(), rec)
		if err != nil {
			h.respondError(w, kind, "create", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, created)
	}
}

func (h *Handler) update(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "id must be numeric")
			return
		}
		rec, err := h.decode(kind, r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		rec.SetRecordID(id)
		updated, err := h.coord.Update(r.Context(), rec)
		if err != nil {
			h.respondError(w, kind, "update", err)
			return
		}
		httpx.JSON(w, http.StatusOK, updated)
	}
}

func (h *Handler) deleteByID(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "id must be numeric")
			return
		}
		removed, err := h.coord.Delete(r.Context(), kind, id)
		if err != nil {
			h.respondError(w, kind, "delete", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]bool{"deleted": removed})
	}
}

func (h *Handler) decode(kind Kind, r *http.Request) (Record, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return UnmarshalRecord(kind, body)
}

func (h *Handler) respondError(w http.ResponseWriter, kind Kind, op string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("ledger operation failed",
			slog.String("kind", string(kind)),
			slog.String("op", op),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
