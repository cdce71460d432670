package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/race-session-engine/internal/session-reconciler/reconciler"
	"github.com/radieske/race-session-engine/internal/session-reconciler/ws"
)

// API expõe a visão reconciliada e o WebSocket
type API struct {
	Reconciler *reconciler.Reconciler
	Hub        *ws.Hub
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/view", a.view)
	r.Get("/v1/view/rounds/{id}", a.round)
	r.Get("/ws", a.Hub.HandleWS)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) view(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Reconciler.View())
}

func (a *API) round(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid round id"})
		return
	}
	v, ok := a.Reconciler.Round(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, v)
}
