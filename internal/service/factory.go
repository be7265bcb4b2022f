// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/conductor/internal/automation"
	"github.com/xkilldash9x/conductor/internal/browser/session"
	"github.com/xkilldash9x/conductor/internal/config"
	"github.com/xkilldash9x/conductor/internal/store"
)

// ComponentFactory creates the set of components the serve and run commands share.
// Commands depend on the interface so tests can substitute the wiring.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create loads the workflow, builds the browser strategies and, when a
// database is configured, opens the run history store.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Workflow definition
	def, err := automation.LoadDefinition(cfg.Automation().WorkflowFile)
	if err != nil {
		initializationErr = fmt.Errorf("failed to load workflow definition: %w", err)
		return nil, initializationErr
	}
	components.Definition = def

	// 2. Browser session strategies
	sessions, err := session.NewFactoryFromConfig(cfg.Browser(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to configure browser sessions: %w", err)
		return nil, initializationErr
	}
	components.Sessions = sessions

	// 3. Run history (optional)
	var opts []automation.Option
	if cfg.Database().URL == "" {
		logger.Warn("Database URL (CONDUCTOR_DATABASE_URL) is not set. Run history will not be recorded.")
	} else {
		pool, err := openPool(ctx, cfg.Database())
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.DBPool = pool

		runStore, err := store.New(ctx, pool, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize run store: %w", err)
			return nil, initializationErr
		}
		if err := runStore.EnsureSchema(ctx); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.Store = runStore
		opts = append(opts, automation.WithRecorder(runStore))
		logger.Info("Run history store initialized.")
	}

	// 4. Automation service
	components.Automation = automation.NewService(sessions, def, cfg.Automation(), logger, opts...)
	logger.Info("Automation service initialized.",
		zap.String("workflow", def.Name),
		zap.Int("steps", len(def.Steps)),
		zap.Strings("strategies", cfg.Browser().Strategies))

	return components, nil
}

// openPool parses the connection string and applies the pool limits.
func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	return pool, nil
}
