package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"utshob.org/internal/auth"
	"utshob.org/internal/ca"
	"utshob.org/internal/config"
	"utshob.org/internal/contact"
	"utshob.org/internal/email"
	"utshob.org/internal/httpapi"
	"utshob.org/internal/identity"
	"utshob.org/internal/obs"
	"utshob.org/internal/registration"
	"utshob.org/internal/session"
	"utshob.org/internal/store/pg"
)

var version = "1.2.0"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var store *pg.Store
	if cfg.PostgresDSN != "" {
		store, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
	} else {
		log.Println("UTSHOB_PG_DSN is empty; persistence is disabled")
		store = pg.NewWithDB(nil)
	}

	var sessionStore session.Store
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		sessionStore = redisStore
	} else {
		sessionStore = session.NewMemoryStore(cfg.SessionTTL)
	}
	sessions, err := session.NewManager(sessionStore, cfg.SessionSecret, cfg.SessionTTL, cfg.CookieSecure)
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}

	var provider identity.Provider
	if cfg.IdentityAPIKey != "" {
		client, err := identity.NewClient(cfg.IdentityAPIKey)
		if err != nil {
			log.Fatalf("identity client: %v", err)
		}
		provider = client
	} else {
		log.Println("UTSHOB_IDENTITY_API_KEY is empty; participant accounts are disabled")
	}

	issuer, err := auth.NewIssuer(cfg.TokenSecret, auth.WithTokenTTL(cfg.TokenTTL))
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	guard, err := auth.NewGuard(issuer, provider, store)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}
	accounts := auth.NewAccounts(store, issuer)

	var mailer email.Sender = email.NopSender{}
	if cfg.SMTPUsername != "" && cfg.SMTPPassword != "" {
		m, err := email.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailSender)
		if err != nil {
			log.Fatalf("mailer: %v", err)
		}
		mailer = m
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := accounts.Bootstrap(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Printf("admin bootstrap: %v", err)
		}
		cancel()
	}

	api := httpapi.New(httpapi.Config{
		ReadyProbe:    httpapi.ReadyProbe{DB: store.DB()},
		Version:       version,
		Sessions:      sessions,
		Guard:         guard,
		Accounts:      accounts,
		Provider:      provider,
		Registrations: registration.NewService(store, mailer),
		Applications:  ca.NewService(store, mailer),
		Messages:      contact.NewService(store),
	})

	handler := api.Handler()
	handler = httpapi.RateLimit(handler, cfg.RateLimitPerMinute)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.CORS(handler, cfg.CORSOrigins)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting utshob-api %s on %s", version, srv.Addr)

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
	_ = store.Close()
	log.Println("Stopped")
}
