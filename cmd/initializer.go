package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"paydesk/internal/config"
	"paydesk/internal/handlers"
	"paydesk/internal/identity"
	"paydesk/internal/repositories"
	"paydesk/internal/services"
	"paydesk/internal/session"
	"paydesk/internal/workspace"
	"paydesk/utils"
)

const sessionCookie = "paydesk_session"

type application struct {
	errorLog       *log.Logger
	infoLog        *log.Logger
	logger         *slog.Logger
	cfg            config.Config
	cookies        *utils.Manager
	gate           *services.Gate
	registry       *workspace.Registry
	consoleHandler *handlers.ConsoleHandler
	redis          *redis.Client
}

func initializeApp(cfg config.Config, logger *slog.Logger, errorLog, infoLog *log.Logger) (*application, error) {
	app := &application{errorLog: errorLog, infoLog: infoLog, logger: logger, cfg: cfg}

	cookies, err := utils.NewManager(cfg.Server.CookieSecret)
	if err != nil {
		return nil, fmt.Errorf("cookie signer: %w", err)
	}
	app.cookies = cookies

	persister, err := app.openSessionStore(cfg.Session)
	if err != nil {
		return nil, err
	}

	provider, err := identity.NewProvider(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("identity provider: %w", err)
	}

	gate, err := services.NewGate(cfg.Console)
	if err != nil {
		return nil, fmt.Errorf("console views: %w", err)
	}
	app.gate = gate

	httpClient := &http.Client{Timeout: cfg.API.Timeout}
	registry, err := workspace.NewRegistry(workspace.Deps{
		Config:     cfg,
		Gate:       gate,
		Provider:   provider,
		Persister:  persister,
		HTTPClient: httpClient,
		Uploader:   services.NewObjectUploader(nil),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	app.registry = registry
	app.consoleHandler = handlers.NewConsoleHandler(gate, cfg.Console, logger)

	infoLog.Printf("identity=%s session=%s api=%s", cfg.Identity.Provider, cfg.Session.Backend, cfg.API.BaseURL)
	return app, nil
}

func (app *application) openSessionStore(cfg config.SessionConfig) (session.Persister, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		app.redis = client
		return repositories.NewSessionRedisRepo(client, cfg.RedisPrefix, cfg.TTL), nil
	case "file":
		return repositories.NewSessionFileRepo(cfg.FileDir)
	default:
		return session.NewMemoryStore(), nil
	}
}

func (app *application) close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.errorLog.Printf("redis close: %v", err)
		}
	}
}

func addSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")
		next.ServeHTTP(w, r)
	})
}
