// Package store persists runs and their bot responses. Persistence is
// an audit trail behind the in-memory registry: the registry never reads
// back through the store on the hot path, so a store failure degrades a
// run to memory-only instead of failing it.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/globalpass/standby-cli/internal/model"
)

// Open creates a store for the configured driver and runs migrations.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		st  Store
		err error
	)
	switch driver {
	case "postgres":
		st, err = NewPostgres(ctx, dsn, nil)
	case "sqlite", "":
		st, err = NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Route  string          `json:"route,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string, completedAt *time.Time) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	CountByStatus(ctx context.Context) (map[model.RunStatus]int, error)

	// Bot responses
	SaveBotResponses(ctx context.Context, runID string, bots map[string]*model.BotTaskState, results []model.ConsolidatedFlight) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
