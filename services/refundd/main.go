package refundd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"refundledger/config"
	"refundledger/core/events"
	"refundledger/core/state"
	"refundledger/crypto"
	"refundledger/integrations/journal"
	"refundledger/integrations/webhooks"
	"refundledger/native/refund"
	"refundledger/observability"
	"refundledger/observability/logging"
	telemetry "refundledger/observability/otel"
	"refundledger/services/refundd/middleware"
	"refundledger/state/bank"
	"refundledger/storage"
)

const serviceName = "refundd"

// Main initialises and runs the refund ledger daemon.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "refund.toml", "path to refundd configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := cfg.Environment
	if env == "" {
		env = strings.TrimSpace(os.Getenv("REFUND_ENV"))
	}
	logger := logging.Setup(serviceName, env, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	app, err := Build(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer app.Close()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      otelhttp.NewHandler(app.Server, serviceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("refundd listening", slog.String("addr", cfg.ListenAddress))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// App holds the wired daemon components.
type App struct {
	Server  *Server
	Engine  *refund.Engine
	Bank    *bank.Ledger
	Journal *journal.Journal

	db      storage.Database
	sqlDB   *gorm.DB
	webhook *webhooks.Dispatcher
}

// Close releases the storage handle and stops webhook delivery.
func (a *App) Close() {
	if a.webhook != nil {
		a.webhook.Close()
	}
	if a.sqlDB != nil {
		if conn, err := a.sqlDB.DB(); err == nil {
			_ = conn.Close()
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Build wires storage, the token ledger, the engine, event sinks and the
// HTTP server from cfg. Metrics register on reg.
func Build(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*App, error) {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	engine, err := refund.NewEngine(engineCfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	app := &App{Engine: engine, db: db}

	ledger := bank.NewLedger(db)
	app.Bank = ledger
	engine.SetState(state.NewRefundStore(db))
	engine.SetLedger(ledger)
	engine.SetLogger(logger)
	engine.SetMetrics(observability.NewRefundMetrics(reg))

	sinks := events.Fanout{observability.NewEventMetrics(reg)}
	gormDB, err := journal.Open(cfg.Journal.DSN)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.sqlDB = gormDB
	j, err := journal.New(gormDB, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Journal = j
	sinks = append(sinks, j)

	if endpoint := strings.TrimSpace(cfg.Webhook.Endpoint); endpoint != "" {
		dispatcher, err := webhooks.NewDispatcher(endpoint, []byte(cfg.Webhook.Secret),
			webhooks.WithLogger(logger),
			webhooks.WithEventTypes(cfg.Webhook.Events...))
		if err != nil {
			app.Close()
			return nil, err
		}
		app.webhook = dispatcher
		sinks = append(sinks, dispatcher)
	}
	engine.SetEmitter(sinks)

	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	var metricsHandler http.Handler
	if gatherer, ok := reg.(prometheus.Gatherer); ok {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	server, err := NewServer(ServerConfig{
		Engine:        engine,
		Bank:          ledger,
		Journal:       j,
		Authenticator: auth,
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}),
		Observability:  middleware.NewObservability(serviceName, reg, logger),
		MetricsHandler: metricsHandler,
		Decimals:       cfg.Ledger.Decimals,
		Faucet:         cfg.Dev.Faucet,
		Logger:         logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Server = server
	logger.Info("refund ledger ready",
		slog.String("token", engine.Token()),
		slog.String("custody", crypto.FromRaw(engine.Roles().Custody).String()),
		logging.MaskField("journal_dsn", cfg.Journal.DSN),
		logging.MaskField("webhook_endpoint", cfg.Webhook.Endpoint))
	return app, nil
}
