package reminders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdeck/internal/types"
)

// ============================================================
// Mocks
// ============================================================

// mockPayableSource serves canned payables and records query shapes.
type mockPayableSource struct {
	mu          sync.Mutex
	payables    map[string]*types.Payable
	getErr      error
	listErr     error
	getByIDsLog [][]string
}

func newMockPayableSource(payables ...*types.Payable) *mockPayableSource {
	m := &mockPayableSource{payables: make(map[string]*types.Payable)}
	for _, p := range payables {
		m.payables[p.ID] = p
	}
	return m
}

func (m *mockPayableSource) GetByIDs(_ context.Context, ids []string) ([]*types.Payable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.getByIDsLog = append(m.getByIDsLog, ids)
	var out []*types.Payable
	for _, id := range ids {
		if p, ok := m.payables[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockPayableSource) ListWithScheduledJobs(_ context.Context, businessID string, _ int) ([]*types.Payable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*types.Payable
	for _, p := range m.payables {
		if p.BusinessID == businessID && len(p.ScheduledJobs) > 0 {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// mockDecrypter reverses a trivial "enc:" prefix.
type mockDecrypter struct {
	failFor string
}

func (d *mockDecrypter) Decrypt(ciphertext string) (string, error) {
	if ciphertext == d.failFor {
		return "", assert.AnError
	}
	return "decrypted:" + ciphertext, nil
}

// failingStore errors on every read.
type failingStore struct{ JobStore }

func (failingStore) RangeByScore(context.Context, float64, float64, int) ([]JobEntry, error) {
	return nil, assert.AnError
}

func (failingStore) MembersForPayable(context.Context, string) ([]IndexedJob, error) {
	return nil, assert.AnError
}

// seedJobs schedules one payable's reminders and returns the store plus refs.
func seedJobs(t *testing.T, now, due time.Time, payableID string, offsets []int) (*MemoryJobStore, []types.ScheduledJobRef, *clock.Mock) {
	t.Helper()
	mck := clock.NewMock()
	mck.Set(now)
	store := NewMemoryJobStore(mck)
	s := NewScheduler(store, newMockMirror(), mck, testLogger(), SchedulerConfig{})
	refs, err := s.ScheduleReminderJobs(context.Background(), payableID, "biz_1", due, offsets)
	require.NoError(t, err)
	return store, refs, mck
}

// ============================================================
// Inspector
// ============================================================

func TestListNextDue_OrderedAscending(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	store, _, _ := seedJobs(t, now, due, "pay_1", []int{7, 2})

	insp := NewInspector(store, nil, nil, testLogger())
	views := insp.ListNextDue(context.Background(), 10)
	require.Len(t, views, 2)
	require.NotNil(t, views[0].ETA)
	require.NotNil(t, views[1].ETA)
	assert.True(t, views[0].ETA.Before(*views[1].ETA))
	assert.Equal(t, time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), *views[0].ETA)
	assert.NotNil(t, views[0].Job)
}

func TestListNextDue_RespectsLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)
	store, _, _ := seedJobs(t, now, due, "pay_1", []int{1, 2, 3, 4, 5})

	insp := NewInspector(store, nil, nil, testLogger())
	assert.Len(t, insp.ListNextDue(context.Background(), 3), 3)
}

func TestListJobsWindow_ExactSubset(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	// ETAs: Jan 5, 10, 15, 19.
	store, _, _ := seedJobs(t, now, due, "pay_1", []int{15, 10, 5, 1})

	insp := NewInspector(store, nil, nil, testLogger())
	start := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	views := insp.ListJobsWindow(context.Background(), &start, &end, 10)
	require.Len(t, views, 2)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), *views[0].ETA)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), *views[1].ETA)
}

func TestListJobsWindow_InclusiveBounds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	store, refs, _ := seedJobs(t, now, due, "pay_1", []int{5})
	require.Len(t, refs, 1)

	insp := NewInspector(store, nil, nil, testLogger())
	eta := refs[0].ETA
	views := insp.ListJobsWindow(context.Background(), &eta, &eta, 10)
	assert.Len(t, views, 1)
}

func TestListJobsWindow_OpenBounds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	store, _, _ := seedJobs(t, now, due, "pay_1", []int{15, 5})

	insp := NewInspector(store, nil, nil, testLogger())

	end := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.Len(t, insp.ListJobsWindow(context.Background(), nil, &end, 10), 1)

	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	assert.Len(t, insp.ListJobsWindow(context.Background(), &start, nil, 10), 1)

	assert.Len(t, insp.ListJobsWindow(context.Background(), nil, nil, 10), 2)
}

func TestListJobsForPayable_DanglingEntriesSortLast(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	store, refs, _ := seedJobs(t, now, due, "pay_1", []int{15, 5})
	require.Len(t, refs, 2)

	// Simulate a pruned time-index entry with a lingering reverse-index
	// member: remove only the index entry for the earlier job.
	danglingID := refs[1].JobID // offset 15, ETA Jan 5
	store.mu.Lock()
	delete(store.index, danglingID)
	store.mu.Unlock()

	insp := NewInspector(store, nil, nil, testLogger())
	views := insp.ListJobsForPayable(context.Background(), "pay_1")
	require.Len(t, views, 2)
	assert.NotNil(t, views[0].ETA)
	assert.Nil(t, views[1].ETA, "dangling entry must sort last with nil ETA")
	assert.Equal(t, danglingID, views[1].JobID)
}

func TestListJobsForPayable_UnknownPayableEmpty(t *testing.T) {
	store := NewMemoryJobStore(clock.NewMock())
	insp := NewInspector(store, nil, nil, testLogger())
	assert.Empty(t, insp.ListJobsForPayable(context.Background(), "pay_missing"))
}

func TestInspector_ReadErrorsSurfaceAsEmpty(t *testing.T) {
	insp := NewInspector(failingStore{}, nil, nil, testLogger())
	assert.Empty(t, insp.ListNextDue(context.Background(), 10))
	assert.Empty(t, insp.ListJobsWindow(context.Background(), nil, nil, 10))
	assert.Empty(t, insp.ListJobsForPayable(context.Background(), "pay_1"))
}

func TestListJobsFromMirror(t *testing.T) {
	eta := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	src := newMockPayableSource(
		&types.Payable{
			ID:         "pay_1",
			BusinessID: "biz_1",
			ScheduledJobs: []types.ScheduledJobRef{
				{JobID: JobID("pay_1", 2, eta.Unix()), OffsetDays: 2, ETA: eta},
			},
		},
		&types.Payable{ID: "pay_2", BusinessID: "biz_1"}, // no mirror entries
		&types.Payable{ID: "pay_3", BusinessID: "biz_2", ScheduledJobs: []types.ScheduledJobRef{
			{JobID: "pay:pay_3:off:1:at:1", OffsetDays: 1, ETA: eta},
		}},
	)

	insp := NewInspector(NewMemoryJobStore(clock.NewMock()), src, nil, testLogger())
	views := insp.ListJobsFromMirror(context.Background(), "biz_1", 10)
	require.Len(t, views, 1)
	assert.Equal(t, "pay_1", views[0].Job.PayableID)
	assert.Equal(t, eta, *views[0].ETA)
}

func TestListJobsFromMirror_LimitPerPayable(t *testing.T) {
	eta := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	src := newMockPayableSource(&types.Payable{
		ID:         "pay_1",
		BusinessID: "biz_1",
		ScheduledJobs: []types.ScheduledJobRef{
			{JobID: "a", OffsetDays: 1, ETA: eta},
			{JobID: "b", OffsetDays: 2, ETA: eta},
			{JobID: "c", OffsetDays: 3, ETA: eta},
		},
	})

	insp := NewInspector(NewMemoryJobStore(clock.NewMock()), src, nil, testLogger())
	assert.Len(t, insp.ListJobsFromMirror(context.Background(), "biz_1", 2), 2)
}

func TestListJobsFromMirror_ReadErrorEmpty(t *testing.T) {
	src := newMockPayableSource()
	src.listErr = assert.AnError
	insp := NewInspector(NewMemoryJobStore(clock.NewMock()), src, nil, testLogger())
	assert.Empty(t, insp.ListJobsFromMirror(context.Background(), "biz_1", 10))
}

func TestHydrateJobsWithPayables_BatchFetchAndDecrypt(t *testing.T) {
	src := newMockPayableSource(
		&types.Payable{ID: "pay_1", BusinessID: "biz_1", ContactPhone: "ct_1"},
		&types.Payable{ID: "pay_2", BusinessID: "biz_1", ContactPhone: ""},
	)
	insp := NewInspector(NewMemoryJobStore(clock.NewMock()), src, &mockDecrypter{}, testLogger())

	views := []JobView{
		{JobID: "a", Job: &Job{JobID: "a", PayableID: "pay_1"}},
		{JobID: "b", Job: &Job{JobID: "b", PayableID: "pay_2"}},
		{JobID: "c", Job: &Job{JobID: "c", PayableID: "pay_1"}},
		{JobID: "d", Job: &Job{JobID: "d", PayableID: "pay_gone"}},
		{JobID: "e"}, // expired payload, no Job
	}
	out := insp.HydrateJobsWithPayables(context.Background(), views)
	require.Len(t, out, 5)

	require.NotNil(t, out[0].Payable)
	assert.Equal(t, "decrypted:ct_1", out[0].Payable.ContactPhone)
	require.NotNil(t, out[1].Payable)
	assert.Empty(t, out[1].Payable.ContactPhone)
	require.NotNil(t, out[2].Payable)
	assert.Nil(t, out[3].Payable, "missing payable hydrates to nil, not dropped")
	assert.Nil(t, out[4].Payable)

	// One batched fetch, not one per view.
	require.Len(t, src.getByIDsLog, 1)
	assert.Len(t, src.getByIDsLog[0], 3)
}

func TestHydrateJobsWithPayables_DecryptFailureBlanksField(t *testing.T) {
	src := newMockPayableSource(&types.Payable{ID: "pay_1", ContactPhone: "bad"})
	insp := NewInspector(NewMemoryJobStore(clock.NewMock()), src, &mockDecrypter{failFor: "bad"}, testLogger())

	out := insp.HydrateJobsWithPayables(context.Background(), []JobView{
		{JobID: "a", Job: &Job{JobID: "a", PayableID: "pay_1"}},
	})
	require.NotNil(t, out[0].Payable)
	assert.Empty(t, out[0].Payable.ContactPhone)
}

func TestHydrateJobsWithPayables_FetchErrorLeavesUnhydrated(t *testing.T) {
	src := newMockPayableSource(&types.Payable{ID: "pay_1"})
	src.getErr = assert.AnError
	insp := NewInspector(NewMemoryJobStore(clock.NewMock()), src, nil, testLogger())

	out := insp.HydrateJobsWithPayables(context.Background(), []JobView{
		{JobID: "a", Job: &Job{JobID: "a", PayableID: "pay_1"}},
	})
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Payable)
}

func TestPayloadExpiryYieldsNilJob(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	store, _, mck := seedJobs(t, now, due, "pay_1", []int{2})

	// Far past the payload TTL; the index entry is still present because
	// only the GC removes it.
	mck.Add(90 * 24 * time.Hour)

	insp := NewInspector(store, nil, nil, testLogger())
	views := insp.ListNextDue(context.Background(), 10)
	require.Len(t, views, 1)
	assert.Nil(t, views[0].Job, "expired payload hydrates to nil")
	assert.NotNil(t, views[0].ETA)
}
