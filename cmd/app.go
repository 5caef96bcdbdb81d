package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"k8s.io/klog/v2"

	"github.com/aonescu/kubedit/cmd/server"
	"github.com/aonescu/kubedit/internal/cluster"
	"github.com/aonescu/kubedit/internal/config"
	"github.com/aonescu/kubedit/internal/db"
	"github.com/aonescu/kubedit/internal/document"
	"github.com/aonescu/kubedit/internal/kubernetes"
	"github.com/aonescu/kubedit/internal/metrics"
	"github.com/aonescu/kubedit/internal/notify"
	"github.com/aonescu/kubedit/internal/resource"
	"github.com/aonescu/kubedit/internal/session"
	"github.com/aonescu/kubedit/internal/state"
)

// app wires the cluster, storage, notification and API layers shared by all
// sessions of one process.
type app struct {
	cfg        config.Config
	registry   *kubernetes.Registry
	scope      *kubernetes.Scope
	namespace  string
	pool       *cluster.Pool
	store      state.Store
	pgStore    *db.PostgresStore
	notices    *notify.Recorder
	dispatcher *session.SerialDispatcher
	gatherer   *prometheus.Registry
	metrics    *metrics.Metrics
	sessions   *server.Sessions
	files      []*document.File
}

func newApp(cfg config.Config) (*app, error) {
	clients, err := kubernetes.NewClients(cfg.Kubeconfig)
	if err != nil {
		return nil, err
	}
	registry := clients.Registry()
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = clients.Namespace
	}

	a := &app{
		cfg:        cfg,
		registry:   registry,
		scope:      kubernetes.NewScope(registry, namespace),
		namespace:  namespace,
		pool:       cluster.NewPool(kubernetes.NewTransport(registry)),
		notices:    notify.NewRecorder(),
		dispatcher: session.NewSerialDispatcher(),
		gatherer:   prometheus.NewRegistry(),
		sessions:   server.NewSessions(),
	}
	a.gatherer.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.gatherer)

	// Initialize storage
	a.store = state.NewMemoryStore(cfg.HistoryLimit)
	if cfg.DatabaseURL != "" {
		pgStore, err := db.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			klog.ErrorS(err, "Failed to connect to PostgreSQL, falling back to in-memory history")
		} else {
			klog.InfoS("Connected to PostgreSQL")
			a.pgStore = pgStore
			a.store = pgStore
		}
	}
	return a, nil
}

func (a *app) options() session.Options {
	return session.Options{
		Notifier:     notify.Multi{notify.NewLogNotifier(), a.notices},
		Dispatcher:   a.dispatcher,
		Scope:        a.scope,
		Store:        a.store,
		Metrics:      a.metrics,
		PollInterval: a.cfg.PollInterval,
	}
}

func (a *app) watchFile(path string) error {
	f, err := document.Open(path)
	if err != nil {
		return err
	}
	a.files = append(a.files, f)
	a.sessions.Add(session.New(f, a.pool, a.options()))
	return nil
}

func (a *app) openResource(ctx context.Context, id resource.Identity) error {
	kind, err := a.registry.Lookup("", id.Kind)
	if err != nil {
		return err
	}
	if kind.Namespaced && id.Namespace == "" {
		id.Namespace = a.namespace
	}
	if !kind.Namespaced {
		id.Namespace = ""
	}
	ref := resource.Ref{APIVersion: kind.GVR.GroupVersion().String(), Identity: id}

	create := func(baseName string, text []byte) (session.Document, error) {
		f, err := document.Create(a.cfg.Dir, baseName, text)
		if err != nil {
			return nil, err
		}
		a.files = append(a.files, f)
		return f, nil
	}
	sess, err := session.OpenResource(ctx, a.pool, ref, create, a.options())
	if err != nil {
		return err
	}
	klog.InfoS("Opened resource", "identity", id.String(), "document", sess.Document())
	a.sessions.Add(sess)
	return nil
}

// Run drives every session and the API server until the process is interrupted.
func (a *app) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.cfg.APIAddress != "" {
		api := server.NewAPIServer(a.store, a.sessions, a.notices, a.gatherer)
		srv := &http.Server{Addr: a.cfg.APIAddress, Handler: api.Handler()}
		go func() {
			klog.InfoS("API server listening", "address", a.cfg.APIAddress)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				klog.ErrorS(err, "API server failed")
				stop()
			}
		}()
		defer srv.Shutdown(context.Background())
		for _, endpoint := range endpoints(a.cfg.APIAddress) {
			klog.V(1).InfoS("API endpoint", "endpoint", endpoint)
		}
	}

	var wg sync.WaitGroup
	for _, sess := range a.sessions.List() {
		wg.Add(1)
		go func(sess *session.Session) {
			defer wg.Done()
			if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				klog.ErrorS(err, "Session stopped", "document", sess.Document())
			}
		}(sess)
	}
	klog.InfoS("Watching documents", "count", a.sessions.Len())

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (a *app) Close() {
	for _, sess := range a.sessions.List() {
		sess.Close()
		a.sessions.Remove(sess)
	}
	for _, f := range a.files {
		f.Close()
	}
	a.pool.Close()
	a.dispatcher.Close()
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}
