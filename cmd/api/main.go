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

	"wrdms.org/internal/auth"
	"wrdms.org/internal/config"
	"wrdms.org/internal/httpapi"
	"wrdms.org/internal/mail"
	"wrdms.org/internal/obs"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.Version = version

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("WRDMS_COMMIT"))

	var db *sql.DB
	var store auth.Store
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		// local development fallback; production refuses to start without a DSN
		store = auth.NewInMemory()
		log.Println("no WRDMS_PG_DSN set, using in-memory store")
	}

	var notifier auth.Notifier
	if cfg.SMTP.Host != "" {
		mailer, err := mail.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.FrontendBaseURL)
		if err != nil {
			log.Fatalf("smtp: %v", err)
		}
		notifier = mailer
	} else if !cfg.Production() {
		notifier = mail.NewLogMailer(cfg.FrontendBaseURL)
	}

	signer := auth.NewSigner(cfg.AuthSecret, cfg.AccessTTL,
		auth.WithSignerIssuer(cfg.TokenIssuer))
	svc, err := auth.NewService(store, signer,
		auth.WithRefreshTTL(cfg.RefreshTTL),
		auth.WithResetTTL(cfg.ResetTTL),
		auth.WithNotifier(notifier))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc,
		httpapi.WithCookieSettings(httpapi.CookieSettings{
			Domain: cfg.CookieDomain,
			Secure: cfg.Production(),
		}),
		httpapi.WithFrontendBaseURL(cfg.FrontendBaseURL),
		httpapi.WithDebugReset(!cfg.Production()),
		httpapi.WithRateLimit(cfg.RateBurst, cfg.RatePerSecond),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting wrdms-api %s on %s (%s)", version, srv.Addr, cfg.Env)

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
	log.Println("Stopped")
}
