package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/schoollibrary/internal/library"
)

type fakeCleaner struct {
	retention time.Duration
	deleted   int64
	err       error
}

func (f *fakeCleaner) DeleteOldEvents(retention time.Duration) (int64, error) {
	f.retention = retention
	return f.deleted, f.err
}

func TestCleanupAuditEventsProcessor(t *testing.T) {
	cleaner := &fakeCleaner{deleted: 7}
	process := CleanupAuditEventsProcessor(cleaner, zerolog.Nop())

	require.NoError(t, process(context.Background(), CleanupAuditEventsTask{RetentionDays: 30}))
	assert.Equal(t, 30*24*time.Hour, cleaner.retention)

	require.NoError(t, process(context.Background(), CleanupAuditEventsTask{}))
	assert.Equal(t, defaultAuditRetentionDays*24*time.Hour, cleaner.retention)
}

func TestCleanupAuditEventsProcessor_Errors(t *testing.T) {
	err := CleanupAuditEventsProcessor(nil, zerolog.Nop())(context.Background(), CleanupAuditEventsTask{})
	assert.Error(t, err)

	boom := errors.New("disk full")
	err = CleanupAuditEventsProcessor(&fakeCleaner{err: boom}, zerolog.Nop())(context.Background(), CleanupAuditEventsTask{})
	assert.ErrorIs(t, err, boom)
}

type fakeChecker struct {
	found []library.Discrepancy
	err   error
	stats library.Stats
}

func (f fakeChecker) CheckConsistency(context.Context) ([]library.Discrepancy, error) {
	return f.found, f.err
}

func (f fakeChecker) Stats() library.Stats { return f.stats }

type recordingReporter struct {
	discrepancies int
	stats         library.Stats
	calls         int
}

func (r *recordingReporter) SetDiscrepancies(n int) {
	r.discrepancies = n
	r.calls++
}

func (r *recordingReporter) SetStats(s library.Stats) { r.stats = s }

func TestConsistencyCheckProcessor(t *testing.T) {
	checker := fakeChecker{
		found: []library.Discrepancy{{ItemID: "B001", Detail: "entry missing from storage"}},
		stats: library.Stats{Entries: 12, ActiveLoans: 3},
	}
	reporter := &recordingReporter{}

	err := ConsistencyCheckProcessor(checker, reporter, zerolog.Nop())(context.Background(), ConsistencyCheckTask{})
	require.NoError(t, err)
	assert.Equal(t, 1, reporter.discrepancies)
	assert.Equal(t, library.Stats{Entries: 12, ActiveLoans: 3}, reporter.stats)
}

func TestConsistencyCheckProcessor_CheckFails(t *testing.T) {
	reporter := &recordingReporter{}
	checker := fakeChecker{err: library.ErrStorageUnavailable}

	err := ConsistencyCheckProcessor(checker, reporter, zerolog.Nop())(context.Background(), ConsistencyCheckTask{})
	assert.ErrorIs(t, err, library.ErrStorageUnavailable)
	assert.Zero(t, reporter.calls)
}

func TestConsistencyCheckProcessor_NilReporter(t *testing.T) {
	err := ConsistencyCheckProcessor(fakeChecker{}, nil, zerolog.Nop())(context.Background(), ConsistencyCheckTask{})
	assert.NoError(t, err)
}
