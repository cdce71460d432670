package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/internal/race-engine/dto"
	"github.com/radieske/race-session-engine/internal/race-engine/ledger"
	"github.com/radieske/race-session-engine/internal/race-engine/session"
)

// API expõe a sessão de corrida via REST.
// Rotas de operador exigem "Authorization: Bearer <OperatorToken>".
type API struct {
	Session       *session.Session
	Log           *zap.Logger
	OperatorToken string
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/v1/rounds/current", a.currentRound)
	r.Get("/v1/rounds/{id}/replay", a.replay)
	r.Post("/v1/bets", a.placeBet)
	r.Get("/v1/players/{id}/stats", a.playerStats)
	r.Get("/v1/history", a.history)
	r.Get("/v1/leaderboard", a.leaderboard)
	r.Get("/v1/accounts/{id}", a.balance)

	// operador
	r.Group(func(r chi.Router) {
		r.Use(a.operatorOnly)
		r.Post("/v1/rounds", a.openRound)
		r.Post("/v1/rounds/current/settle", a.settle)
		r.Post("/v1/rounds/current/force-settle", a.forceSettle)
		r.Post("/v1/accounts/{id}/deposit", a.deposit)
		r.Post("/v1/admin/resume", a.resume)
	})
	return r
}

func (a *API) operatorOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.OperatorToken == "" {
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "operator endpoints disabled"})
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.OperatorToken)) != 1 {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor traduz a categoria do erro para o status HTTP
func StatusFor(k ledger.Kind) int {
	switch k {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindPhase:
		return http.StatusConflict
	case ledger.KindResource:
		return http.StatusPaymentRequired
	case ledger.KindIntegrity, ledger.KindUnavailable:
		return http.StatusServiceUnavailable
	case ledger.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError nunca expõe o detalhe de uma falha de integridade
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := session.Classify(err)
	status := StatusFor(kind)
	msg := err.Error()
	switch kind {
	case ledger.KindIntegrity:
		msg = "engine unavailable"
	case ledger.KindUnknown:
		msg = "internal error"
	}
	if status >= http.StatusInternalServerError && a.Log != nil {
		a.Log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Kind: kind.String()})
}
