package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReminderLifecycle walks one payable from scheduling through inspection
// to garbage collection on a single mock clock.
func TestReminderLifecycle(t *testing.T) {
	ctx := context.Background()
	mck := clock.NewMock()
	mck.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	store := NewMemoryJobStore(mck)
	mirror := newMockMirror()
	sched := NewScheduler(store, mirror, mck, testLogger(), SchedulerConfig{})
	insp := NewInspector(store, nil, nil, testLogger())
	gc := NewCollector(store, mirror, nil, mck, testLogger(), CollectorConfig{GracePeriod: 48 * time.Hour})

	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	refs, err := sched.ScheduleReminderJobs(ctx, "pay_e1", "biz_1", due, []int{7, 2})
	require.NoError(t, err)
	require.Len(t, refs, 2)

	// Both jobs visible, soonest first: Jan 3 (offset 7) then Jan 8 (offset 2).
	views := insp.ListNextDue(ctx, 10)
	require.Len(t, views, 2)
	assert.Equal(t, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), *views[0].ETA)
	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), *views[1].ETA)

	// Jan 4: the offset-7 job is due but still inside the grace window, so
	// a sweep leaves it alone.
	mck.Set(time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC))
	res, err := gc.PruneExpiredJobsByETA(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pruned)
	end := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	assert.Len(t, insp.ListJobsWindow(ctx, nil, &end, 10), 1)

	// Jan 6: the offset-7 job (ETA Jan 3) is now past the 48h grace.
	mck.Set(time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC))
	res, err = gc.PruneExpiredJobsByETA(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)

	views = insp.ListNextDue(ctx, 10)
	require.Len(t, views, 1)
	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), *views[0].ETA)

	members, err := store.MembersForPayable(ctx, "pay_e1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, refs[0].JobID, members[0].JobID)
	assert.Equal(t, []string{refs[1].JobID}, mirror.pulled["pay_e1"])
}
