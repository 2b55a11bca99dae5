package ops

import (
	"time"

	"github.com/hpungsan/nami/internal/analytics"
	"github.com/hpungsan/nami/internal/config"
	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/store"
)

// StatsInput contains parameters for the Stats operation.
type StatsInput struct {
	Now time.Time // default: now
}

// StatsOutput contains the result of the Stats operation.
type StatsOutput struct {
	analytics.Report
}

// Stats computes the analytics report over the current snapshot, bucketing
// times in the configured timezone.
func Stats(st *store.Store, cfg *config.Config, input StatsInput) (*StatsOutput, error) {
	loc := time.Local
	if cfg != nil {
		var err error
		if loc, err = cfg.Location(); err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &StatsOutput{Report: analytics.Build(st.Snapshot(), now, loc)}, nil
}
