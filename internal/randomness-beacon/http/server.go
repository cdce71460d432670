package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/internal/randomness-beacon/service"
	"github.com/radieske/race-session-engine/internal/randomness-beacon/store"
)

// API expõe o commit-reveal por round
type API struct {
	Service *service.Service
	Log     *zap.Logger
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/rounds/{id}/commitment", a.commitment) // ?deadline=<unix>
	r.Get("/v1/rounds/{id}/reveal", a.reveal)         // ?deadline=<unix>
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func roundID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (a *API) commitment(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid round id"})
		return
	}
	unix, err := strconv.ParseInt(r.URL.Query().Get("deadline"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deadline required"})
		return
	}

	c, err := a.Service.Commit(r.Context(), id, time.Unix(unix, 0))
	switch {
	case errors.Is(err, service.ErrInvalidDeadline):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrDeadlineMismatch):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		a.Log.Error("commit failed", zap.Uint64("round_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "commit failed"})
	default:
		writeJSON(w, http.StatusOK, c)
	}
}

func (a *API) reveal(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid round id"})
		return
	}

	unix, err := strconv.ParseInt(r.URL.Query().Get("deadline"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deadline required"})
		return
	}

	rv, err := a.Service.Reveal(r.Context(), id, time.Unix(unix, 0))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, service.ErrTooEarly):
		writeJSON(w, http.StatusTooEarly, map[string]string{"error": err.Error()})
	case err != nil:
		a.Log.Error("reveal failed", zap.Uint64("round_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reveal failed"})
	default:
		writeJSON(w, http.StatusOK, rv)
	}
}
