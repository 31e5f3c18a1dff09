package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portalbridge/internal/activity"
	"portalbridge/internal/credentials"
	"portalbridge/internal/oauth"
	"portalbridge/internal/policy"
	"portalbridge/internal/portal"
	"portalbridge/internal/proxy"
	"portalbridge/internal/sessions"
	"portalbridge/internal/shopify"
	"portalbridge/internal/tenants"
	"portalbridge/internal/webhooks"
	"portalbridge/pkg/config"
	"portalbridge/pkg/db"
	"portalbridge/pkg/logger"
	"portalbridge/pkg/middleware"
	"portalbridge/pkg/secretbox"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	box, err := secretbox.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatalw("encryption key", "err", err)
	}
	sessionMgr, err := sessions.NewManager(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		log.Fatalw("session secret", "err", err)
	}

	pool := db.MustConnect(cfg, log)
	if pool == nil {
		log.Fatalw("DATABASE_URL is required")
	}
	if err := tenants.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalw("schema", "err", err)
	}
	rdb := db.MustRedis(cfg, log)

	registry := tenants.NewRegistry(pool, box, log)
	issuer := credentials.NewIssuer(pool, box, log)
	recorder := activity.NewRecorder(pool, log)
	hookStore := webhooks.NewStore(pool)

	client := shopify.NewClient(cfg.ShopifyAPIKey, cfg.ShopifySecret, cfg.ShopifyAPIVersion, cfg.UpstreamTimeout, log)

	var nonces oauth.NonceStore
	var limiter middleware.Limiter
	if rdb != nil {
		nonces = oauth.NewRedisNonceStore(rdb)
		limiter = middleware.NewRedisLimiter(rdb, cfg.RateLimitMax, cfg.RateLimitWindow)
	} else {
		nonces = oauth.NewMemoryNonceStore()
		limiter = middleware.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	}

	gate, err := policy.Load(cfg.PolicyFile, log)
	if err != nil {
		log.Fatalw("policy", "err", err)
	}
	resources := proxy.NewRegistry()
	if err := resources.LoadOverrides(cfg.ResourceFile); err != nil {
		log.Fatalw("resource registry", "err", err)
	}

	purge, err := activity.StartPurgeJob(recorder, cfg.ActivityRetentionDays, log)
	if err != nil {
		log.Fatalw("purge job", "err", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing(cfg))
	r.Use(middleware.Metrics())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	oauth.NewHandler(cfg, client, registry, nonces, sessionMgr, hookStore, recorder, log).Register(r)
	webhooks.NewHandler(cfg.ShopifySecret, registry, hookStore, recorder, log).Register(r)

	proxyHandler := proxy.NewHandler(resources, client, gate, recorder, log)
	r.Route("/v1", func(pr chi.Router) {
		pr.Use(middleware.RateLimit(limiter, log))
		pr.Use(middleware.CredentialAuth(issuer))
		proxyHandler.Register(pr)
	})

	portalHandler := portal.NewHandler(registry, issuer, recorder, log)
	r.Route("/portal", func(pr chi.Router) {
		pr.Use(middleware.SessionAuth(sessionMgr))
		portalHandler.Register(pr)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("gateway listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	_ = purge.Shutdown()
	log.Infow("gateway stopped")
}
