package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/psds-microservice/call-service/internal/config"
	"github.com/psds-microservice/call-service/internal/database"
	"github.com/psds-microservice/call-service/internal/handler"
	"github.com/psds-microservice/call-service/internal/router"
	"github.com/psds-microservice/call-service/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// API is the HTTP + WebSocket API application.
type API struct {
	cfg      *config.Config
	srv      *http.Server
	db       *gorm.DB
	logger   *zap.Logger
	registry *service.SessionRegistry
}

// NewAPI creates the API application: validates config, runs migrations, opens DB, builds router.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}

	store := database.NewSessionStore(db)
	registry := service.NewSessionRegistry(store, logger)
	if active, err := store.LoadActive(); err != nil {
		logger.Warn("registry warm-up failed", zap.Error(err))
	} else {
		registry.Warm(active)
	}

	hub := service.NewSignalHub(cfg.WSMaxMessageSize, cfg.WSSendBuffer, logger)
	hub.Upgrader().ReadBufferSize = cfg.WSReadBufferSize
	hub.Upgrader().WriteBufferSize = cfg.WSWriteBufferSize
	relay := service.NewSignalRelay(registry, hub, logger)

	callHandler := handler.NewCallHandler(relay, cfg.WSBaseURL)
	signalWS := handler.NewSignalWSHandler(hub, relay, logger)
	health := handler.NewHealthHandler()

	r := router.New(callHandler, signalWS, health)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, db: db, logger: logger, registry: registry}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled; then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	addr := a.srv.Addr
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", addr)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  Calls:         %s/calls", base)
	log.Printf("  Presence WS:   ws://%s:%s/ws/presence/:user_id", host, a.cfg.HTTPPort)
	log.Printf("  Signaling WS:  ws://%s:%s/ws/call/:session_id/:user_id", host, a.cfg.HTTPPort)

	go a.sweepLoop(ctx)

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	_ = a.logger.Sync()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// sweepLoop periodically removes ended sessions past the grace period. The
// sweeper never touches non-terminal sessions.
func (a *API) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.registry.Sweep(a.cfg.SweepMaxAge)
		}
	}
}
