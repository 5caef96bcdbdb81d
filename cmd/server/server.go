package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aonescu/kubedit/internal/notify"
	"github.com/aonescu/kubedit/internal/state"
)

type APIServer struct {
	store    state.Store
	sessions *Sessions
	notices  *notify.Recorder
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
}

// NewAPIServer serves the given sessions. notices is the recorder the sessions notify,
// gatherer backs /metrics and may be nil.
func NewAPIServer(store state.Store, sessions *Sessions, notices *notify.Recorder, gatherer prometheus.Gatherer) *APIServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	api := &APIServer{
		store:    store,
		sessions: sessions,
		notices:  notices,
		gatherer: gatherer,
		mux:      http.NewServeMux(),
	}
	api.registerRoutes()
	return api
}

func (api *APIServer) registerRoutes() {
	// Session endpoints
	api.mux.HandleFunc("/api/v1/sessions", api.handleSessions)
	api.mux.HandleFunc("/api/v1/sessions/push", api.handlePush)
	api.mux.HandleFunc("/api/v1/sessions/reload", api.handleReload)
	api.mux.HandleFunc("/api/v1/sessions/update", api.handleUpdate)

	// Sync history
	api.mux.HandleFunc("/api/v1/history", api.handleHistory)
	api.mux.HandleFunc("/api/v1/stats", api.handleStats)

	// Health check
	api.mux.HandleFunc("/health", api.handleHealth)
	api.mux.HandleFunc("/ready", api.handleReady)

	api.mux.Handle("/metrics", promhttp.HandlerFor(api.gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the routes wrapped in the middleware chain.
func (api *APIServer) Handler() http.Handler {
	return api.corsMiddleware(api.loggingMiddleware(api.mux))
}
