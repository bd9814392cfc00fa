// Package store persists pipeline runs and their zonal summaries.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/e1-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines run persistence.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, report any, runErr error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	LatestRun(ctx context.Context) (*model.Run, error)

	// Zonal summaries
	SaveZoneStats(ctx context.Context, runID string, stats []model.ZoneStats) error
	ListZoneStats(ctx context.Context, runID, level string) ([]model.ZoneStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// zoneKey stores the unassigned group under the empty key. Real zone ids
// are never blank.
func zoneKey(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func zoneID(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

func errorText(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}
