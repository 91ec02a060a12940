package backend

import (
	"context"
	"fmt"

	"finsight/internal/amqp"
	"finsight/internal/ledger/memory"
	"finsight/internal/log"
	"finsight/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a factory logging through logger, or the context logger when nil.
func NewFactory(logger *log.Logger) *DefaultFactory {
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) loggerFor(ctx context.Context) *log.Logger {
	if f.logger != nil {
		return f.logger
	}
	return log.FromContext(ctx).WithComponent(log.ComponentBackend)
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.loggerFor(ctx).InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if config.SeedCSV == "" {
		f.loggerFor(ctx).InfoContext(ctx, "Initialized empty memory backend")
		return &BackendResult{Store: memory.New()}, nil
	}

	store, err := memory.NewFromCSV(config.SeedCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
	}
	users, _ := store.ListUsers(ctx)
	f.loggerFor(ctx).InfoContext(ctx, "Initialized memory backend",
		"seed_csv", config.SeedCSV,
		"users", len(users))
	return &BackendResult{Store: store}, nil
}

// AMQPConfig selects the broker and queues.
type AMQPConfig struct {
	URL          string
	Exchange     string
	RequestQueue string
	NotifyQueue  string
}

// ConnectAMQP dials the broker. An empty URL disables messaging and returns
// a nil client without error.
func (f *DefaultFactory) ConnectAMQP(ctx context.Context, cfg AMQPConfig) (*amqp.Client, error) {
	if cfg.URL == "" {
		f.loggerFor(ctx).InfoContext(ctx, "AMQP disabled")
		return nil, nil
	}
	client, err := amqp.NewClient(cfg.URL, cfg.Exchange, cfg.RequestQueue, cfg.NotifyQueue)
	if err != nil {
		return nil, fmt.Errorf("connect AMQP: %w", err)
	}
	f.loggerFor(ctx).InfoContext(ctx, "Initialized AMQP client",
		"exchange", cfg.Exchange,
		"request_queue", cfg.RequestQueue,
		"notify_queue", cfg.NotifyQueue)
	return client, nil
}
