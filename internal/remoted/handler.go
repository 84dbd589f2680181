package remoted

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/motorledger/motorledger/internal/ledger"
	"github.com/motorledger/motorledger/internal/platform/httpx"
)

// Handler serves the wire contract consumed by the failover client.
type Handler struct {
	repo   *Repository
	logger *slog.Logger
}

// NewHandler constructs the remoted HTTP handler.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// MountRoutes attaches collection CRUD plus the maintenance endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, kind := range ledger.Kinds {
		kind := kind
		r.Route("/"+string(kind), func(r chi.Router) {
			r.Get("/", h.list(kind))
			r.Post("/", h.create(kind))
			r.Get("/{id}", h.get(kind))
			r.Put("/{id}", h.update(kind))
			r.Delete("/{id}", h.remove(kind))
		})
	}
	r.Post("/restore", h.restore)
	r.Post("/initialize", h.initialize)
	r.Post("/reset-ids", h.resetIDs)
}

func (h *Handler) list(kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := h.repo.List(r.Context(), kind)
		if err != nil {
			h.fail(w, "list", err)
			return
		}
		if recs == nil {
			recs = []ledger.Record{}
		}
		httpx.JSON(w, http.StatusOK, recs)
	}
}

func (h *Handler) get(kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.id(w, r)
		if !ok {
			return
		}
		rec, err := h.repo.Get(r.Context(), kind, id)
		if err != nil {
			h.fail(w, "get", err)
			return
		}
		httpx.JSON(w, http.StatusOK, rec)
	}
}

func (h *Handler) create(kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := h.decode(kind, r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		created, err := h.repo.Create(r.Context(), rec)
		if err != nil {
			h.fail(w, "create", err)
			return
		}
		httpx.JSON(w, http.StatusCreated, created)
	}
}

func (h *Handler) update(kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.id(w, r)
		if !ok {
			return
		}
		rec, err := h.decode(kind, r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		rec.SetRecordID(id)
		updated, err := h.repo.Update(r.Context(), rec)
		if err != nil {
			h.fail(w, "update", err)
			return
		}
		httpx.JSON(w, http.StatusOK, updated)
	}
}

func (h *Handler) remove(kind ledger.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.id(w, r)
		if !ok {
			return
		}
		if err := h.repo.Delete(r.Context(), kind, id); err != nil {
			h.fail(w, "delete", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
	}
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	var snap ledger.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.repo.Restore(r.Context(), &snap); err != nil {
		h.fail(w, "restore", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"restored": true})
}

func (h *Handler) initialize(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Initialize(r.Context()); err != nil {
		h.fail(w, "initialize", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"initialized": true})
}

func (h *Handler) resetIDs(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ResetIDs(r.Context()); err != nil {
		h.fail(w, "reset-ids", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(kind ledger.Kind, r *http.Request) (ledger.Record, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return ledger.UnmarshalRecord(kind, body)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	h.logger.Error("remoted operation failed", slog.String("op", op), slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
