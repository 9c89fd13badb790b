package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diagnosis/luma-gate/internal/credstore"
	"github.com/diagnosis/luma-gate/internal/dedup"
	"github.com/diagnosis/luma-gate/internal/gate"
	"github.com/diagnosis/luma-gate/internal/http/handlers"
	mw "github.com/diagnosis/luma-gate/internal/http/middleware"
	"github.com/diagnosis/luma-gate/internal/luma"
	"github.com/diagnosis/luma-gate/internal/mailer"
	"github.com/diagnosis/luma-gate/internal/metrics"
	"github.com/diagnosis/luma-gate/internal/repo/postgres"
	"github.com/diagnosis/luma-gate/internal/scan"
	"github.com/diagnosis/luma-gate/internal/session"
	"github.com/diagnosis/luma-gate/pkg/config"
	"github.com/diagnosis/luma-gate/pkg/database"
	"github.com/diagnosis/luma-gate/pkg/events"
	"github.com/diagnosis/luma-gate/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Platform session and guest lookups
	client := luma.NewClient(cfg.API)
	store := credstore.NewStore(cfg.Auth.CredentialsFile)
	sessions := session.NewManager(client, store, cfg.Auth.AccountEmail, cfg.Auth.AccountPassword)
	guests := luma.NewGuestService(client, sessions)

	// Deduplication: shared via Redis when configured, in-process otherwise
	var dedupStore dedup.Store = dedup.NewMemoryStore(cfg.Scanner.Cooldown)
	if cfg.Redis.Addr != "" {
		rdb, err := dedup.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Error("Failed to connect to Redis, using in-process dedup", "error", err)
		} else {
			defer rdb.Close()
			dedupStore = dedup.NewRedisStore(rdb, cfg.Scanner.Cooldown)
			logger.Info("Shared dedup enabled", "addr", cfg.Redis.Addr)
		}
	}
	deduper := dedup.NewDeduplicator(dedupStore)

	// Outcome sinks
	recent := gate.NewRecentBuffer(100)
	sinks := gate.MultiSink{gate.LogSink{}, gate.MetricsSink{}, recent}

	var checkins postgres.CheckinRepo
	if cfg.Database.URL != "" {
		pool, err := database.Connect(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		repo := postgres.NewCheckinRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to prepare check-in schema", "error", err)
			os.Exit(1)
		}
		checkins = repo
		sinks = append(sinks, gate.NewAuditSink(repo, cfg.Gate.Name))
		logger.Info("Check-in audit log enabled")
	}

	if cfg.NATS.URL != "" {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Error("Failed to connect to NATS, outcomes stay local", "error", err)
		} else {
			defer bus.Close()
			sinks = append(sinks, gate.NewBusSink(bus, cfg.Gate.Name))
			logger.Info("Outcome publishing enabled", "url", cfg.NATS.URL)
		}
	}

	mail := newMailer(cfg)

	// Scan intake: the serial wedge on stdin plus the admin endpoint
	scans := make(chan scan.Raw, cfg.Scanner.QueueSize)
	source := scan.NewLineSource(os.Stdin, scans)
	go func() {
		if err := source.Run(ctx); err != nil {
			logger.Error("Scan source stopped", "error", err)
		}
	}()

	// Admin API
	h := handlers.NewAdminHandler(cfg, sessions, recent, checkins, scans, mail)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.GateName(cfg.Gate.Name))
	r.Use(mw.Logging)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.ErrorContext(r.Context(), "Panic recovered", "error", err)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	})
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.Server.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/v1", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting admin API", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin API error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gate...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Admin API shutdown error", "error", err)
		}
	}()

	// The gate loop blocks until shutdown or a fatal failure.
	orch := gate.NewOrchestrator(guests, deduper, sinks, scans, cfg.Scanner.URLPrefix, cfg.Gate.Name)
	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Gate halted", "error", err)
		if errors.Is(err, luma.ErrAuthRejected) && cfg.Email.OperatorEmail != "" {
			if aerr := mail.SendCredentialAlert(cfg.Email.OperatorEmail, cfg.Gate.Name, cfg.Auth.AccountEmail, err.Error()); aerr != nil {
				logger.Error("Failed to send credential alert", "error", aerr)
			}
		}
		os.Exit(1)
	}

	logger.Info("Gate stopped")
}

func newMailer(cfg *config.Config) mailer.Service {
	switch {
	case cfg.Email.DevMode:
		return mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		return mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Gate.Name, cfg.Email.SMTPFrom)
	default:
		return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
	}
}
