package reminders

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Job IDs are delimited strings of the form
//
//	pay:{payableID}:off:{offsetDays}:at:{etaEpoch}
//
// The encoding is a pure function of its inputs (idempotency key) and must
// stay reversible: the garbage collector recovers the payable ID from the ID
// alone so it can cascade deletions into the per-payable index and the
// document mirror.
const (
	jobIDPrefix    = "pay:"
	jobIDOffMarker = ":off:"
	jobIDAtMarker  = ":at:"
)

// JobID computes the deterministic identifier for a reminder job. The same
// (payableID, offsetDays, etaEpoch) triple always yields the same string,
// across processes and restarts.
func JobID(payableID string, offsetDays int, etaEpoch int64) string {
	return fmt.Sprintf("pay:%s:off:%d:at:%d", payableID, offsetDays, etaEpoch)
}

// ParseJobID recovers the components of a job ID produced by JobID. Payable
// IDs may themselves contain colons, so the markers are matched from the
// right. Returns an error for any string not produced by JobID.
func ParseJobID(id string) (payableID string, offsetDays int, etaEpoch int64, err error) {
	if !strings.HasPrefix(id, jobIDPrefix) {
		return "", 0, 0, fmt.Errorf("job id %q: missing %q prefix", id, jobIDPrefix)
	}
	rest := id[len(jobIDPrefix):]

	atIdx := strings.LastIndex(rest, jobIDAtMarker)
	if atIdx < 0 {
		return "", 0, 0, fmt.Errorf("job id %q: missing %q marker", id, jobIDAtMarker)
	}
	etaEpoch, err = strconv.ParseInt(rest[atIdx+len(jobIDAtMarker):], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("job id %q: bad eta: %w", id, err)
	}

	head := rest[:atIdx]
	offIdx := strings.LastIndex(head, jobIDOffMarker)
	if offIdx < 0 {
		return "", 0, 0, fmt.Errorf("job id %q: missing %q marker", id, jobIDOffMarker)
	}
	offsetDays, err = strconv.Atoi(head[offIdx+len(jobIDOffMarker):])
	if err != nil {
		return "", 0, 0, fmt.Errorf("job id %q: bad offset: %w", id, err)
	}

	payableID = head[:offIdx]
	if payableID == "" {
		return "", 0, 0, fmt.Errorf("job id %q: empty payable id", id)
	}
	return payableID, offsetDays, etaEpoch, nil
}

// ReminderETA computes the fire time for a reminder offsetDays calendar days
// before dueAt. The input is normalized to UTC and the subtraction uses date
// arithmetic rather than a fixed 24h duration, so a due date carrying a
// time-of-day stays correct across DST transitions.
func ReminderETA(dueAt time.Time, offsetDays int) time.Time {
	return dueAt.UTC().AddDate(0, 0, -offsetDays)
}

// dedupeSortedOffsets returns the distinct values of offsets in ascending
// order without mutating the input.
func dedupeSortedOffsets(offsets []int) []int {
	seen := make(map[int]struct{}, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, d := range offsets {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	// Insertion sort; offset lists are tiny (a handful of values).
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
