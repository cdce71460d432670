package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Targets são as URLs base dos serviços atrás do gateway.
// Beacon é opcional (sem beacon o engine usa a semente de fallback).
type Targets struct {
	Engine     string
	Reconciler string
	Beacon     string
}

func proxy(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", to)
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

// NewRouter monta as rotas públicas:
//
//	/api/race/*    -> race-engine
//	/api/view/*    -> session-reconciler (inclusive /api/view/ws)
//	/api/beacon/*  -> randomness-beacon
func NewRouter(t Targets, allowedOrigins []string) (http.Handler, error) {
	engine, err := proxy(t.Engine)
	if err != nil {
		return nil, err
	}
	view, err := proxy(t.Reconciler)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Mount("/api/race", http.StripPrefix("/api/race", engine))
	r.Mount("/api/view", http.StripPrefix("/api/view", view))
	if t.Beacon != "" {
		beacon, err := proxy(t.Beacon)
		if err != nil {
			return nil, err
		}
		r.Mount("/api/beacon", http.StripPrefix("/api/beacon", beacon))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r, nil
}
