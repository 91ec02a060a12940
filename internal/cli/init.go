// Package cli holds the bootstrap shared by cmd/finsight and
// cmd/analytics-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"finsight/internal/amqp"
	"finsight/internal/analytics"
	"finsight/internal/backend"
	"finsight/internal/config"
	"finsight/internal/log"
	"finsight/internal/services"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads .env files for local development. Missing files are
// ignored; variables already set in the environment win.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// LoadAndValidateConfig loads the configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger from cfg and makes it the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	level, err := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Config{
		Level:     level,
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stderr,
	})
	if err != nil {
		logger.Warn("Unknown log level, using info", log.FieldError, err)
	}
	log.SetDefault(logger)
	return logger
}

// App is a bootstrapped process: configuration, logger, backend and engine.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Backend *backend.BackendResult
	Engine  *analytics.Engine
}

// Bootstrap loads configuration, opens the backend and builds the engine.
// The returned context carries the logger.
func Bootstrap(ctx context.Context, component string) (*App, context.Context, error) {
	if err := LoadEnvFile(); err != nil {
		return nil, ctx, err
	}
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, ctx, err
	}
	logger := SetupLogger(cfg, component)
	ctx = log.IntoContext(ctx, logger)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, ctx, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend)).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, ctx, err
	}

	engine, err := analytics.NewEngine(res.Store, cfg.Analytics)
	if err != nil {
		res.Close()
		return nil, ctx, fmt.Errorf("build engine: %w", err)
	}
	return &App{Config: cfg, Logger: logger, Backend: res, Engine: engine}, ctx, nil
}

func (a *App) Close() error {
	return a.Backend.Close()
}

// ConnectAMQP dials the configured broker. A nil client means messaging is disabled.
func (a *App) ConnectAMQP(ctx context.Context) (*amqp.Client, error) {
	return backend.NewFactory(a.Logger.WithComponent(log.ComponentAMQP)).ConnectAMQP(ctx, backend.AMQPConfig{
		URL:          a.Config.AMQPURL,
		Exchange:     a.Config.AMQPExchange,
		RequestQueue: a.Config.AMQPRequestQueue,
		NotifyQueue:  a.Config.AMQPNotifyQueue,
	})
}

// NewAnalysisService builds the analysis service over the app's backend.
// A nil client disables anomaly announcements.
func (a *App) NewAnalysisService(client *amqp.Client) *services.AnalysisService {
	opts := []services.AnalysisOption{services.WithScheduler(a.Backend.Store)}
	if client != nil {
		opts = append(opts, services.WithNotifier(client))
	}
	return services.NewAnalysisService(a.Engine, a.Backend.Store, services.AnalysisConfig{
		NotifyMinSeverity: a.Config.NotifySeverity(),
		InsightCacheSize:  a.Config.InsightCacheSize,
		InsightCacheTTL:   a.Config.InsightCacheTTL,
	}, opts...)
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil {
			log.FromContext(parent).Info("Shutdown signal received")
		}
	}()
	return ctx, cancel
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
