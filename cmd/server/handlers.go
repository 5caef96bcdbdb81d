package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"k8s.io/klog/v2"

	"github.com/aonescu/kubedit/internal/db"
	"github.com/aonescu/kubedit/internal/faults"
	"github.com/aonescu/kubedit/internal/formatting"
	"github.com/aonescu/kubedit/internal/notify"
	"github.com/aonescu/kubedit/internal/session"
)

// pinger is a history store backed by a database connection.
type pinger interface {
	Ping() error
}

type sessionView struct {
	session.Status
	Notifications []notify.Active `json:"notifications"`
}

func (api *APIServer) viewOf(sess *session.Session) sessionView {
	status := sess.Status()
	view := sessionView{Status: status, Notifications: []notify.Active{}}
	if api.notices != nil {
		view.Notifications = api.notices.Active(status.Document)
	}
	return view
}

// GET /api/v1/sessions
func (api *APIServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	views := make([]sessionView, 0)
	for _, sess := range api.sessions.List() {
		views = append(views, api.viewOf(sess))
	}
	api.respondJSON(w, views)
}

// POST /api/v1/sessions/push?document=foo@ns.yaml
func (api *APIServer) handlePush(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(w, r)
	if !ok {
		return
	}

	pushed, err := sess.Push(r.Context())
	if err != nil {
		api.respondError(w, err)
		return
	}

	api.respondJSON(w, map[string]interface{}{
		"session": api.viewOf(sess),
		"version": pushed.Version(),
	})
}

// POST /api/v1/sessions/reload?document=foo@ns.yaml
func (api *APIServer) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(w, r)
	if !ok {
		return
	}

	if err := sess.Reload(r.Context()); err != nil {
		api.respondError(w, err)
		return
	}
	api.respondJSON(w, api.viewOf(sess))
}

// POST /api/v1/sessions/update?document=foo@ns.yaml
func (api *APIServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := api.sessionFor(w, r)
	if !ok {
		return
	}

	decision, err := sess.Update(r.Context())
	if err != nil {
		api.respondError(w, err)
		return
	}

	api.respondJSON(w, map[string]interface{}{
		"session":     api.viewOf(sess),
		"decision":    decision,
		"explanation": formatting.FormatDecision(sess.Document(), decision),
	})
}

// GET /api/v1/history?document=foo@ns.yaml&limit=50
func (api *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	document := r.URL.Query().Get("document")
	if document == "" {
		http.Error(w, "document parameter required", http.StatusBadRequest)
		return
	}
	if sess, ok := api.sessions.Find(document); ok {
		document = sess.Document()
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	events := api.store.History(document, limit)
	api.respondJSON(w, map[string]interface{}{
		"document": document,
		"events":   events,
		"summary":  formatting.GenerateSummary(events),
	})
}

// GET /api/v1/stats
func (api *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"sessions":   api.sessions.Len(),
		"documents":  len(api.store.Documents()),
		"by_verdict": make(map[string]int),
	}

	byVerdict := stats["by_verdict"].(map[string]int)
	for _, sess := range api.sessions.List() {
		byVerdict[string(sess.Status().Verdict)]++
	}

	if pgStore, ok := api.store.(*db.PostgresStore); ok {
		recorded, err := pgStore.CountByVerdict()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		stats["recorded_by_verdict"] = recorded
	}

	api.respondJSON(w, stats)
}

// GET /health
func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	}
	status := http.StatusOK

	// Check the database connection when the history is stored in one
	if database, ok := api.store.(pinger); ok {
		if err := database.Ping(); err != nil {
			health["status"] = "unhealthy"
			health["database"] = "disconnected"
			status = http.StatusServiceUnavailable
		} else {
			health["database"] = "connected"
		}
	}

	api.respondStatus(w, status, health)
}

// GET /ready
func (api *APIServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := map[string]interface{}{
		"ready":    true,
		"sessions": api.sessions.Len(),
	}
	api.respondJSON(w, ready)
}

func (api *APIServer) sessionFor(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	document := r.URL.Query().Get("document")
	if document == "" {
		http.Error(w, "document parameter required", http.StatusBadRequest)
		return nil, false
	}

	sess, ok := api.sessions.Find(document)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func statusFor(err error) int {
	switch faults.CategoryOf(err) {
	case faults.ConflictError:
		return http.StatusConflict
	case faults.ParseError, faults.ValidationError:
		return http.StatusUnprocessableEntity
	case faults.NotFoundError:
		return http.StatusNotFound
	case faults.TransportError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (api *APIServer) respondError(w http.ResponseWriter, err error) {
	api.respondStatus(w, statusFor(err), map[string]string{
		"error":    err.Error(),
		"category": string(faults.CategoryOf(err)),
	})
}

func (api *APIServer) respondJSON(w http.ResponseWriter, data interface{}) {
	api.respondStatus(w, http.StatusOK, data)
}

func (api *APIServer) respondStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		klog.V(2).InfoS("Handled request", "method", r.Method, "path", r.URL.Path,
			"remote", r.RemoteAddr, "duration", time.Since(start))
	})
}

func (api *APIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
