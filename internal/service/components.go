// File: internal/service/components.go
package service

import (
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkilldash9x/conductor/internal/automation"
	"github.com/xkilldash9x/conductor/internal/browser/session"
	"github.com/xkilldash9x/conductor/internal/observability"
	"github.com/xkilldash9x/conductor/internal/server"
	"github.com/xkilldash9x/conductor/internal/store"
)

// Components holds everything a command needs to run automations.
// Store and DBPool are nil when run history is disabled.
type Components struct {
	Definition *automation.Definition
	Sessions   *session.Factory
	Automation *automation.Service
	Store      *store.Store
	DBPool     *pgxpool.Pool

	shutdownOnce sync.Once
}

// History exposes the run store to the HTTP server, or nil when there is none.
func (c *Components) History() server.RunHistory {
	if c.Store == nil {
		return nil
	}
	return c.Store
}

// Shutdown releases long-lived resources. Browser sessions are owned by
// individual runs and are already closed by the time this is called.
func (c *Components) Shutdown() {
	c.shutdownOnce.Do(func() {
		logger := observability.GetLogger()
		logger.Debug("Beginning components shutdown sequence.")

		if c.DBPool != nil {
			c.DBPool.Close()
			logger.Debug("Database connection pool closed.")
		}

		logger.Info("All components shut down successfully.")
	})
}
