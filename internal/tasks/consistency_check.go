package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/rs/zerolog"

	"github.com/mrlokans/schoollibrary/internal/library"
)

// ConsistencyChecker compares the in-memory library state with storage.
type ConsistencyChecker interface {
	CheckConsistency(ctx context.Context) ([]library.Discrepancy, error)
	Stats() library.Stats
}

// ConsistencyReporter publishes sweep results, typically as metrics.
type ConsistencyReporter interface {
	SetDiscrepancies(n int)
	SetStats(library.Stats)
}

// ConsistencyCheckTask runs one ledger consistency sweep.
type ConsistencyCheckTask struct {
	RequestedAt time.Time `json:"requested_at"`
}

// Config returns the queue configuration for consistency checks.
func (t ConsistencyCheckTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "consistency_check",
		MaxAttempts: 1,
		Timeout:     5 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: true,
		},
	}
}

// ConsistencyCheckProcessor creates a processor function for ConsistencyCheckTask.
// Every discrepancy is logged; reporter may be nil.
func ConsistencyCheckProcessor(checker ConsistencyChecker, reporter ConsistencyReporter, logger zerolog.Logger) backlite.QueueProcessor[ConsistencyCheckTask] {
	return func(ctx context.Context, task ConsistencyCheckTask) error {
		if checker == nil {
			return errors.New("consistency checker not configured")
		}

		found, err := checker.CheckConsistency(ctx)
		if err != nil {
			return fmt.Errorf("consistency check: %w", err)
		}

		for _, d := range found {
			logger.Warn().Str("item_id", d.ItemID).Str("detail", d.Detail).Msg("ledger discrepancy")
		}

		stats := checker.Stats()
		if reporter != nil {
			reporter.SetDiscrepancies(len(found))
			reporter.SetStats(stats)
		}

		logger.Info().
			Int("discrepancies", len(found)).
			Int("entries", stats.Entries).
			Int("active_loans", stats.ActiveLoans).
			Msg("consistency check finished")
		return nil
	}
}

// NewConsistencyCheckQueue creates a backlite queue for consistency checks.
func NewConsistencyCheckQueue(checker ConsistencyChecker, reporter ConsistencyReporter, logger zerolog.Logger) backlite.Queue {
	return backlite.NewQueue(ConsistencyCheckProcessor(checker, reporter, logger))
}
