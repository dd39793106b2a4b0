package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdeck/internal/reminders"
	"opsdeck/internal/types"
)

type mockJobReader struct {
	views       []reminders.JobView
	windowStart *time.Time
	windowEnd   *time.Time
}

func (m *mockJobReader) ListNextDue(context.Context, int) []reminders.JobView {
	return m.views
}

func (m *mockJobReader) ListJobsWindow(_ context.Context, start, end *time.Time, _ int) []reminders.JobView {
	m.windowStart, m.windowEnd = start, end
	return m.views
}

func (m *mockJobReader) ListJobsForPayable(context.Context, string) []reminders.JobView {
	return m.views
}

func (m *mockJobReader) ListJobsFromMirror(context.Context, string, int) []reminders.JobView {
	return m.views
}

func (m *mockJobReader) HydrateJobsWithPayables(_ context.Context, views []reminders.JobView) []reminders.JobView {
	return views
}

type mockPruner struct {
	res    reminders.GCResult
	err    error
	called int
}

func (m *mockPruner) PruneExpiredJobsByETA(context.Context, int) (reminders.GCResult, error) {
	m.called++
	return m.res, m.err
}

func jobView(jobID, businessID string) reminders.JobView {
	return reminders.JobView{
		JobID: jobID,
		Job:   &reminders.Job{JobID: jobID, BusinessID: businessID},
	}
}

func newReminderFixture(reader JobReader, pruner JobPruner) *ReminderHandler {
	return NewReminderHandler(reader, pruner, nil, slog.New(slog.DiscardHandler), 0)
}

func TestRemindersNextScopedToBusiness(t *testing.T) {
	reader := &mockJobReader{views: []reminders.JobView{
		jobView("job_a", "biz_1"),
		jobView("job_b", "biz_other"),
		{JobID: "job_expired"}, // no payload, kept
	}}
	h := newReminderFixture(reader, &mockPruner{})
	router := mountV1(h.RegisterRoutes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/v1/reminders/next?limit=10", ""))

	require.Equal(t, http.StatusOK, w.Code)
	views := decodeData[[]reminders.JobView](t, w.Body.Bytes())
	require.Len(t, views, 2)
	assert.Equal(t, "job_a", views[0].JobID)
	assert.Equal(t, "job_expired", views[1].JobID)
}

func TestRemindersWindowParsesBounds(t *testing.T) {
	reader := &mockJobReader{}
	h := newReminderFixture(reader, &mockPruner{})
	router := mountV1(h.RegisterRoutes)

	w := httptest.NewRecorder()
	target := "/v1/reminders/window?start=2026-01-01T00:00:00Z&end=2026-02-01T00:00:00Z"
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, target, ""))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, reader.windowStart)
	require.NotNil(t, reader.windowEnd)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *reader.windowStart)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), *reader.windowEnd)
}

func TestRemindersWindowRejectsBadBounds(t *testing.T) {
	h := newReminderFixture(&mockJobReader{}, &mockPruner{})
	router := mountV1(h.RegisterRoutes)

	tests := []struct {
		name   string
		target string
	}{
		{name: "unparseable start", target: "/v1/reminders/window?start=yesterday"},
		{name: "start after end", target: "/v1/reminders/window?start=2026-02-01T00:00:00Z&end=2026-01-01T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, authedRequest(t, http.MethodGet, tt.target, ""))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "validation_time_window_invalid")
		})
	}
}

func TestRemindersWindowOpenBounds(t *testing.T) {
	reader := &mockJobReader{}
	h := newReminderFixture(reader, &mockPruner{})
	router := mountV1(h.RegisterRoutes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodGet, "/v1/reminders/window", ""))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, reader.windowStart)
	assert.Nil(t, reader.windowEnd)
}

func TestTriggerGC(t *testing.T) {
	pruner := &mockPruner{res: reminders.GCResult{Examined: 12, Pruned: 12}}
	h := newReminderFixture(&mockJobReader{}, pruner)
	router := mountV1(h.RegisterRoutes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/v1/reminders/gc", ""))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, pruner.called)
	res := decodeData[reminders.GCResult](t, w.Body.Bytes())
	assert.Equal(t, 12, res.Pruned)
}

func TestTriggerGCPropagatesError(t *testing.T) {
	pruner := &mockPruner{err: types.NewAppError(types.ErrCodeInternalJobStore, "job store unavailable", nil)}
	h := newReminderFixture(&mockJobReader{}, pruner)
	router := mountV1(h.RegisterRoutes)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authedRequest(t, http.MethodPost, "/v1/reminders/gc", ""))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
