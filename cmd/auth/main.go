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
	"github.com/joho/godotenv"

	"huntops.org/internal/audit"
	"huntops.org/internal/authn"
	"huntops.org/internal/config"
	"huntops.org/internal/httpapi"
	"huntops.org/internal/login"
	"huntops.org/internal/obs"
	"huntops.org/internal/password"
	"huntops.org/internal/ratelimit"
	"huntops.org/internal/redisx"
	"huntops.org/internal/revocation"
	"huntops.org/internal/token"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Redis backs the revocation list and the rate limiter when configured;
	// otherwise both run in process memory.
	rdb, err := redisx.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}

	var (
		revoked revocation.Store
		limiter ratelimit.Limiter
	)
	if rdb != nil {
		revoked = revocation.NewRedis(rdb)
		limiter = ratelimit.NewRedis(rdb)
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				rdb.RecordPoolStats()
			}
		}()
	} else {
		mem := revocation.NewMemory()
		defer mem.Close()
		revoked = mem
		memLimiter := ratelimit.NewMemory()
		defer memLimiter.Close()
		limiter = memLimiter
	}

	var (
		db    *sql.DB
		creds login.Store
	)
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		creds = login.NewPGStore(db)
	} else {
		creds = login.NewMemoryStore()
	}

	tokens, err := token.NewService(cfg.SigningSecret, revoked,
		token.WithIssuer(cfg.Issuer),
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
		token.WithRevocationTimeout(cfg.RevocationTimeout),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	gateway, err := authn.NewService(
		creds,
		login.NewGuard(cfg.LockoutThreshold, cfg.LockoutDuration),
		tokens,
		password.NewPolicy(cfg.PasswordMinLength, cfg.PasswordMaxLength),
		authn.WithAuditSink(func(ctx context.Context, event string, fields map[string]any) {
			_ = audit.LogEvent(ctx, event, fields)
		}),
	)
	if err != nil {
		log.Fatalf("authn service: %v", err)
	}

	api := httpapi.New(httpapi.Config{
		Gateway:     gateway,
		Limiter:     limiter,
		LoginPolicy: cfg.LoginRatePolicy,
		APIPolicy:   cfg.APIRatePolicy,
		ReadyProbe:  httpapi.ReadyProbe{DB: db, Redis: rdb},
		Version:     version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting huntops-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Println("Stopped")
}
