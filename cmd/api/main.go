package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"jobdesk.org/internal/audit"
	"jobdesk.org/internal/auth"
	"jobdesk.org/internal/config"
	"jobdesk.org/internal/email"
	"jobdesk.org/internal/httpapi"
	"jobdesk.org/internal/obs"
)

func main() {
	obs.Init()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	secret := cfg.AuthSecret
	if secret == "" {
		// Development fallback only; Validate rejects this elsewhere.
		secret = "dev-insecure-secret"
	}

	tokens, err := auth.NewTokenService(secret,
		auth.WithIssuer(cfg.Issuer),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithRecoveryTTL(cfg.RecoveryTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		db            *sql.DB
		identityStore auth.IdentityStore
		auditStore    audit.Store
	)
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		identityStore = auth.NewPGIdentityStore(db)
		auditStore = audit.NewPGStore(db)
	} else {
		log.Println("no JOBDESK_PG_DSN set, using in-memory stores")
		identityStore = auth.NewMemoryIdentityStore()
		auditStore = audit.NewMemoryStore()
	}
	recorder := audit.NewRecorder(auditStore)

	opts := []auth.ServiceOption{
		auth.WithMinPasswordLen(cfg.MinPasswordLen),
		auth.WithResetBaseURL(cfg.PublicBaseURL),
	}
	if cfg.SMTPHost != "" {
		opts = append(opts, auth.WithMailer(email.New(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
			cfg.EmailFrom, cfg.EmailFromName, cfg.SMTPEncryption,
		)))
	}
	svc, err := auth.NewService(identityStore, tokens, recorder, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, cfg.Version, svc, tokens, recorder,
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSec),
		httpapi.WithAuditRetention(cfg.AuditRetention),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting jobdesk-admin-api %s on %s", cfg.Version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("stopped")
}
