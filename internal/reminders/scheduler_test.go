package reminders

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdeck/internal/types"
)

// ============================================================
// Shared Test Helpers
// ============================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// mockMirror records mirror writes for assertions.
type mockMirror struct {
	mu         sync.Mutex
	replaced   map[string][]types.ScheduledJobRef
	replacedAt map[string]time.Time
	pulled     map[string][]string
	replaceErr error
	pullErr    error
}

func newMockMirror() *mockMirror {
	return &mockMirror{
		replaced:   make(map[string][]types.ScheduledJobRef),
		replacedAt: make(map[string]time.Time),
		pulled:     make(map[string][]string),
	}
}

func (m *mockMirror) ReplaceScheduledJobs(_ context.Context, payableID string, jobs []types.ScheduledJobRef, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaced[payableID] = jobs
	m.replacedAt[payableID] = updatedAt
	return nil
}

func (m *mockMirror) PullScheduledJobs(_ context.Context, payableID string, jobIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pullErr != nil {
		return m.pullErr
	}
	m.pulled[payableID] = append(m.pulled[payableID], jobIDs...)
	return nil
}

func (m *mockMirror) replaceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replaced)
}

// newTestScheduler wires a Scheduler on a mock clock frozen at the given
// instant.
func newTestScheduler(t *testing.T, now time.Time) (*Scheduler, *MemoryJobStore, *mockMirror, *clock.Mock) {
	t.Helper()
	mck := clock.NewMock()
	mck.Set(now)
	store := NewMemoryJobStore(mck)
	mirror := newMockMirror()
	s := NewScheduler(store, mirror, mck, testLogger(), SchedulerConfig{})
	return s, store, mirror, mck
}

// ============================================================
// Scheduler
// ============================================================

func TestScheduleReminderJobs_Basic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s, store, mirror, _ := newTestScheduler(t, now)

	refs, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{7, 2})
	require.NoError(t, err)
	require.Len(t, refs, 2)

	// Offsets are processed ascending, so the larger offset (earlier ETA)
	// comes second in the mirror list.
	assert.Equal(t, 2, refs[0].OffsetDays)
	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), refs[0].ETA)
	assert.Equal(t, 7, refs[1].OffsetDays)
	assert.Equal(t, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), refs[1].ETA)

	assert.Equal(t, 2, store.IndexLen())
	assert.Equal(t, refs, mirror.replaced["pay_1"])
	assert.Equal(t, now, mirror.replacedAt["pay_1"])
}

func TestScheduleReminderJobs_Idempotent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s, store, _, _ := newTestScheduler(t, now)

	first, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{7, 2})
	require.NoError(t, err)
	second, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{7, 2})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, store.IndexLen(), "re-scheduling must not duplicate index entries")
}

func TestScheduleReminderJobs_DedupesOffsets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s, store, _, _ := newTestScheduler(t, now)

	refs, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{7, 7, 2, 2})
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Equal(t, 2, store.IndexLen())
}

func TestScheduleReminderJobs_SkipsPastOffsets(t *testing.T) {
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s, store, mirror, _ := newTestScheduler(t, now)

	// Offset 7 puts the ETA at Jan 3, already past; offset 2 fires Jan 8.
	refs, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{7, 2})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, 2, refs[0].OffsetDays)
	assert.Equal(t, 1, store.IndexLen())
	assert.Equal(t, refs, mirror.replaced["pay_1"])
}

func TestScheduleReminderJobs_AllPastOffsetsSchedulesNothing(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC) // already in the past
	s, store, mirror, _ := newTestScheduler(t, now)

	refs, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{0, 2, 7})
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.Equal(t, 0, store.IndexLen())
	assert.Equal(t, 0, mirror.replaceCount(), "mirror must not be clobbered with an empty schedule")
}

func TestScheduleReminderJobs_ETAEqualToNowIsSkipped(t *testing.T) {
	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	due := now
	s, _, _, _ := newTestScheduler(t, now)

	refs, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{0})
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestScheduleReminderJobs_PayloadContents(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s, store, _, _ := newTestScheduler(t, now)

	refs, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{2})
	require.NoError(t, err)
	require.Len(t, refs, 1)

	insp := NewInspector(store, nil, nil, testLogger())
	views := insp.ListNextDue(context.Background(), 10)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Job)
	job := views[0].Job
	assert.Equal(t, refs[0].JobID, job.JobID)
	assert.Equal(t, "pay_1", job.PayableID)
	assert.Equal(t, "biz_1", job.BusinessID)
	assert.Equal(t, 2, job.OffsetDays)
	assert.Equal(t, refs[0].ETA, job.ETA)
	assert.Equal(t, refs[0].ETA.Unix(), job.ETAEpoch)
	assert.Equal(t, 0, job.Attempts)
}

func TestScheduleReminderJobs_TTLFloor(t *testing.T) {
	// A job scheduled minutes before its ETA still gets at least MinTTL,
	// so the payload survives until the grace window has passed.
	now := time.Date(2026, 1, 9, 23, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	mck := clock.NewMock()
	mck.Set(now)
	store := NewMemoryJobStore(mck)
	s := NewScheduler(store, newMockMirror(), mck, testLogger(), SchedulerConfig{
		RetentionWindow: time.Nanosecond, // force the floor to win
		MinTTL:          2 * time.Hour,
	})

	refs, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{0})
	require.NoError(t, err)
	require.Len(t, refs, 1)

	mck.Add(90 * time.Minute)
	_, ok, err := store.GetPayload(context.Background(), refs[0].JobID)
	require.NoError(t, err)
	assert.True(t, ok, "payload must outlive the ETA by at least MinTTL")
}

func TestScheduleReminderJobs_MirrorErrorPropagates(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s, _, mirror, _ := newTestScheduler(t, now)
	mirror.replaceErr = assert.AnError

	_, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{2})
	assert.Error(t, err)
}

func TestScheduleReminderJobs_ConcurrentCallsNoDuplicates(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s, store, _, _ := newTestScheduler(t, now)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ScheduleReminderJobs(context.Background(), "pay_1", "biz_1", due, []int{7, 2})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, store.IndexLen())
}
