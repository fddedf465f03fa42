package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"db-monitor/pkg/auth"
	"db-monitor/pkg/monitor"
	"db-monitor/pkg/store"
	"db-monitor/pkg/version"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Service *monitor.Service
	Store   store.InstanceStore
	// DB holds user accounts; auth routes are skipped when nil.
	DB           *gorm.DB
	Signer       *auth.Signer
	RequireJWT   bool
	PushInterval time.Duration
	Gatherer     prometheus.Gatherer
	Hub          *WSHub
	Logger       logrus.FieldLogger
}

// RegisterRoutes wires the HTTP handlers on the provided mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Signer == nil {
		d.Signer = auth.NewSigner("")
	}
	if d.Hub == nil {
		d.Hub = NewWSHub(d.Logger)
	}
	if d.PushInterval <= 0 {
		d.PushInterval = 5 * time.Second
	}

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("db-monitor"))
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, _ *http.Request) {
		ok(w, map[string]string{"build": version.Build})
	})

	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	guard := func(h http.HandlerFunc) http.HandlerFunc {
		return AuthMiddleware(h, d.Signer, d.RequireJWT)
	}

	m := &monitoringHandler{svc: d.Service, store: d.Store, hub: d.Hub, interval: d.PushInterval, log: d.Logger}
	m.register(mux)

	i := &instanceHandler{svc: d.Service, store: d.Store, log: d.Logger}
	i.register(mux, guard)

	if d.DB != nil {
		a := &AuthHandler{DB: d.DB, Signer: d.Signer, Log: d.Logger}
		a.RegisterRoutes(mux, guard)
	}
}
