package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echolib "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	securityapi "github.com/veloursalon/websec/api/echo"
	"github.com/veloursalon/websec/config"
	"github.com/veloursalon/websec/csrf"
	"github.com/veloursalon/websec/domain"
	"github.com/veloursalon/websec/internal/auth"
	"github.com/veloursalon/websec/internal/crypto"
	"github.com/veloursalon/websec/internal/sweeper"
	"github.com/veloursalon/websec/log"
	"github.com/veloursalon/websec/loginguard"
	"github.com/veloursalon/websec/middleware"
	"github.com/veloursalon/websec/mongodb"
	"github.com/veloursalon/websec/seclog"
	"github.com/veloursalon/websec/session"
	"github.com/veloursalon/websec/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	logger := log.NewZerologAdapter(logLevel, cfg.LogPretty)
	ctx := context.Background()

	// A dead CSPRNG means no unguessable tokens; refuse to start.
	if err := crypto.MustProbe(); err != nil {
		logger.Fatal(ctx, "secure random generator unavailable", err, nil)
	}

	logger.Info(ctx, "starting velour security core", map[string]interface{}{
		"environment":   cfg.Environment,
		"http_port":     cfg.HTTPPort,
		"store_backend": cfg.StoreBackend,
	})

	// Backing stores for the mutable security tables.
	var (
		sessKV  store.KV[domain.Session]
		csrfKV  store.KV[domain.CSRFToken]
		guardKV store.KV[domain.LoginAttemptRecord]
	)
	switch cfg.StoreBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal(ctx, "redis unreachable", err, nil)
		}
		sessKV = store.NewRedis[domain.Session](client, "websec:sessions")
		csrfKV = store.NewRedis[domain.CSRFToken](client, "websec:csrf")
		guardKV = store.NewRedis[domain.LoginAttemptRecord](client, "websec:attempts")
	default:
		sessKV = store.NewMemory[domain.Session]()
		csrfKV = store.NewMemory[domain.CSRFToken]()
		guardKV = store.NewMemory[domain.LoginAttemptRecord]()
	}
	defer func() {
		_ = sessKV.Close()
		_ = csrfKV.Close()
		_ = guardKV.Close()
	}()

	// Outside local development, events also flow to the durable sink.
	var sink seclog.Sink
	if !cfg.IsLocal() {
		db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			// The sink is best-effort by contract; start without it.
			logger.Error(ctx, "event sink unavailable, continuing without", err, nil)
		} else if eventSink, sinkErr := mongodb.NewEventSink(ctx, db); sinkErr == nil {
			sink = eventSink
		}
	}

	events := seclog.New(logger, seclog.Options{
		Sink:          sink,
		AlertDebounce: time.Duration(cfg.AlertDebounceSec) * time.Second,
	})

	sessions := session.NewStore(sessKV, sessionProfiles(cfg), events)
	csrfStore := csrf.NewStore(csrfKV, time.Duration(cfg.CSRFTokenExpiryMin)*time.Minute)
	guard := loginguard.New(guardKV, loginguard.Policy{
		MaxAttempts:     cfg.LoginMaxAttempts,
		AttemptWindow:   time.Duration(cfg.LoginAttemptWindowMin) * time.Minute,
		LockoutDuration: time.Duration(cfg.LoginLockoutMin) * time.Minute,
	})

	gate := middleware.NewGate(cfg, sessions, csrfStore, guard, events, logger)

	users := bootstrapDirectory(cfg)
	api := securityapi.NewSecurityAPI(cfg, gate, sessions, csrfStore, guard, events,
		auth.NewBcryptPasswordHasher(0), users, logger)

	e := echolib.New()
	e.HideBanner = true
	api.RegisterRoutes(e)

	// Periodic maintenance, stopped with the process.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	sw := sweeper.New(time.Duration(cfg.SweepIntervalMin)*time.Minute, logger,
		sweeper.Task{Name: "sessions", Run: sessions.Sweep},
		sweeper.Task{Name: "csrf_tokens", Run: csrfStore.Sweep},
		sweeper.Task{Name: "login_attempts", Run: guard.Sweep},
		sweeper.Task{Name: "event_trackers", Run: func(ctx context.Context) int {
			events.Sweep(ctx)
			return 0
		}},
	)
	go sw.Run(sweepCtx)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "http server failed", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "shutting down", nil)
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "graceful shutdown failed", err, nil)
	}
}

// sessionProfiles applies the configured overrides onto the defaults.
func sessionProfiles(cfg *config.SecurityConfig) session.Profiles {
	profiles := session.DefaultProfiles(!cfg.IsLocal())
	if cfg.AdminSessionMaxAgeMin > 0 {
		profiles.Admin.MaxAge = time.Duration(cfg.AdminSessionMaxAgeMin) * time.Minute
	}
	if cfg.AdminSessionIdleMin > 0 {
		profiles.Admin.IdleTimeout = time.Duration(cfg.AdminSessionIdleMin) * time.Minute
	}
	if cfg.UserSessionMaxAgeMin > 0 {
		profiles.Default.MaxAge = time.Duration(cfg.UserSessionMaxAgeMin) * time.Minute
	}
	if cfg.UserSessionIdleMin > 0 {
		profiles.Default.IdleTimeout = time.Duration(cfg.UserSessionIdleMin) * time.Minute
	}
	return profiles
}

// bootstrapDirectory exposes the operator account from configuration. The
// site's real user store replaces this in the full application.
func bootstrapDirectory(cfg *config.SecurityConfig) securityapi.UserDirectory {
	if cfg.AdminEmail == "" || cfg.AdminPasswordHash == "" {
		return securityapi.NewStaticDirectory()
	}
	return securityapi.NewStaticDirectory(securityapi.User{
		ID:           "operator",
		Email:        cfg.AdminEmail,
		Role:         domain.RoleAdmin,
		PasswordHash: cfg.AdminPasswordHash,
	})
}
