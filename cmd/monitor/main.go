package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"db-monitor/pkg/api"
	"db-monitor/pkg/auth"
	"db-monitor/pkg/config"
	"db-monitor/pkg/db"
	"db-monitor/pkg/monitor"
	"db-monitor/pkg/notify"
	"db-monitor/pkg/store"
	"db-monitor/pkg/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "registry backend: memory|mysql|sqlite|consul (consul requires build tag consul)")
	flag.StringVar(&cfg.ConsulAddr, "consul-addr", cfg.ConsulAddr, "consul address (when store=consul)")
	flag.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "registry file (when store=sqlite)")
	flag.DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "connect timeout per probe, at most 5s")
	flag.IntVar(&cfg.SlowQueryLimit, "slow-query-limit", cfg.SlowQueryLimit, "slow queries returned per report")
	flag.BoolVar(&cfg.RequireJWT, "require-jwt", cfg.RequireJWT, "require a bearer token on instance management routes")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "history synthesis seed (0 = clock)")
	flag.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS cert path (enables HTTPS if set with --tls-key)")
	flag.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS key path (enables HTTPS if set with --tls-cert)")
	flag.StringVar(&cfg.ClientCA, "client-ca", cfg.ClientCA, "require and verify client certs using this CA (optional)")
	flag.Parse()

	log := cfg.Logger()
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	tlsCfg, err := cfg.TLS()
	if err != nil {
		log.WithError(err).Fatal("failed to build TLS config")
	}

	var gdb *gorm.DB
	var registry store.InstanceStore
	switch cfg.Store {
	case "memory":
		registry = store.NewMemoryStore()
	case "mysql":
		if gdb, err = db.Init(cfg, log); err != nil {
			log.WithError(err).Fatal("registry database")
		}
		registry = store.NewGormStore(gdb)
	case "sqlite":
		sq, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.WithError(err).Fatal("registry database")
		}
		defer sq.Close()
		registry = sq
	case "consul":
		if registry, err = store.NewConsulStore(cfg.ConsulAddr); err != nil {
			log.WithError(err).Fatal("consul registry")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitor.NewMetrics(reg)

	var src rand.Source
	if cfg.Seed != 0 {
		src = rand.NewSource(cfg.Seed)
	}
	dialer := monitor.NewDialer(cfg.ProbeTimeout, nil, log)
	opts := monitor.Options{
		Registry:       registry,
		Prober:         monitor.NewProber(dialer, metrics, log),
		Collector:      monitor.NewCollector(dialer, cfg.QueryTimeout, metrics, log),
		Synthesizer:    monitor.NewSynthesizer(src, metrics),
		Logger:         log,
		SlowQueryLimit: cfg.SlowQueryLimit,
	}
	if n := notify.NewDingTalk(cfg.DingTalkWebhook, cfg.DingTalkSecret, log); n != nil {
		opts.Notifier = n
	}
	svc := monitor.NewService(opts)

	hub := api.NewWSHub(log)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Deps{
		Service:      svc,
		Store:        registry,
		DB:           gdb,
		Signer:       auth.NewSigner(cfg.JWTSecret),
		RequireJWT:   cfg.RequireJWT,
		PushInterval: cfg.WSPushInterval,
		Gatherer:     reg,
		Hub:          hub,
		Logger:       log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         tlsCfg,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("shutdown")
		}
	}()

	log.WithFields(logrus.Fields{
		"addr":    cfg.Addr,
		"store":   cfg.Store,
		"version": version.String(),
		"tls":     tlsCfg != nil,
	}).Info("monitor listening")
	if tlsCfg != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server error")
	}
}
