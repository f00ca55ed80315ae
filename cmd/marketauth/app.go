package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mkalinina/marketauth/internal/db"
	"github.com/mkalinina/marketauth/internal/handlers"
	"github.com/mkalinina/marketauth/internal/handlers/middleware"
	"github.com/mkalinina/marketauth/internal/logger"
	"github.com/mkalinina/marketauth/internal/repository/postgres"
	"github.com/mkalinina/marketauth/internal/service/account"
	"github.com/mkalinina/marketauth/internal/service/auth"
	"github.com/mkalinina/marketauth/internal/service/federation"
	"github.com/mkalinina/marketauth/internal/service/token"
	"github.com/mkalinina/marketauth/internal/upload"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log := logger.New(c.Environment, c.LogLevel)

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	// Empty secret key is a configuration error and aborts startup here
	tokenManager, err := token.New(token.Config{SecretKey: c.SecretKey}, storage.Refresh(), storage.User())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{}, tokenManager, storage.User())
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	uploader := upload.NewClient(c.UploadAddr, log)
	accountService := account.NewService(storage.User(), uploader)

	broker, err := federation.NewBroker(
		federation.Config{
			SecretKey:       c.SecretKey,
			CallbackBaseURL: c.CallbackBaseURL,
			Google: federation.ProviderCredentials{
				ClientID:     c.GoogleClientID,
				ClientSecret: c.GoogleClientSecret,
			},
			Facebook: federation.ProviderCredentials{
				ClientID:     c.FacebookClientID,
				ClientSecret: c.FacebookClientSecret,
			},
		},
		tokenManager,
		storage,
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating federation broker. Err: %w", err)
	}

	// Initialize handlers
	authHandler := handlers.NewAuth(authService, log)
	userHandler := handlers.NewUsers(accountService, log)
	federationHandler := handlers.NewFederation(broker, authService, c.FrontendBaseURL, log)
	authMiddleware := middleware.AuthMiddleware(authService)

	mux := handlers.NewRouter(
		authHandler,
		userHandler,
		federationHandler,
		authMiddleware,
		middleware.LoggerMiddleware(log),
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server")
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
