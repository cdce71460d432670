package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/internal/race-engine/dto"
)

func (a *API) currentRound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Session.CurrentRound())
}

func (a *API) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Kind: "validation"})
		return
	}
	if req.Contestant == nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "contestant required", Kind: "validation"})
		return
	}

	ack, err := a.Session.PlaceBet(r.Context(), req.Participant, *req.Contestant, req.Amount)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ack)
}

func (a *API) playerStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Session.PlayerStats(chi.URLParam(r, "id")))
}

// history: mais antigo primeiro
func (a *API) history(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Session.History())
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid limit", Kind: "validation"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, a.Session.Leaderboard(limit))
}

func (a *API) replay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid round id", Kind: "validation"})
		return
	}
	res, err := a.Session.Replay(id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) balance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, dto.BalanceResponse{Participant: id, Balance: a.Session.Balance(id)})
}

func (a *API) openRound(w http.ResponseWriter, r *http.Request) {
	id, err := a.Session.OpenRound(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.OpenRoundResponse{RoundID: id})
}

func (a *API) settle(w http.ResponseWriter, r *http.Request) {
	res, err := a.Session.CloseAndSettle(r.Context())
	if err != nil && res.Entry.RoundID == 0 {
		a.writeError(w, r, err)
		return
	}
	// liquidado; falha só ao abrir o próximo round fica no log
	if err != nil && a.Log != nil {
		a.Log.Warn("settled but next round not opened", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) forceSettle(w http.ResponseWriter, r *http.Request) {
	var req dto.ForceSettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Winner == nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "winner required", Kind: "validation"})
		return
	}
	res, err := a.Session.ForceSettle(r.Context(), *req.Winner)
	if err != nil && res.Entry.RoundID == 0 {
		a.writeError(w, r, err)
		return
	}
	if err != nil && a.Log != nil {
		a.Log.Warn("force-settled but next round not opened", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Kind: "validation"})
		return
	}
	id := chi.URLParam(r, "id")
	bal, err := a.Session.Deposit(id, req.Amount)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{Participant: id, Balance: bal})
}

func (a *API) resume(w http.ResponseWriter, r *http.Request) {
	if err := a.Session.Resume(); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ResumeResponse{Status: "resumed"})
}
