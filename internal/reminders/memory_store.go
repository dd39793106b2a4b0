package reminders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// MemoryJobStore is an in-memory JobStore used in tests and local
// development. It honors the same semantics as the Redis implementation:
// conditional add to the time index, TTL expiry on payloads (evaluated
// lazily against the injected clock), and idempotent removal.
type MemoryJobStore struct {
	mu    sync.RWMutex
	clk   clock.Clock
	index map[string]int64 // jobID -> eta epoch (the "sorted set")
	blobs map[string]payloadRecord
	sets  map[string]map[string]struct{} // payableID -> jobID set
}

type payloadRecord struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryJobStore creates an empty in-memory store. Pass a clock.Mock to
// control TTL expiry in tests.
func NewMemoryJobStore(clk clock.Clock) *MemoryJobStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryJobStore{
		clk:   clk,
		index: make(map[string]int64),
		blobs: make(map[string]payloadRecord),
		sets:  make(map[string]map[string]struct{}),
	}
}

var _ JobStore = (*MemoryJobStore)(nil)

// Put implements JobStore.
func (s *MemoryJobStore) Put(_ context.Context, jobID, payableID string, etaEpoch int64, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[jobID]; !exists {
		s.index[jobID] = etaEpoch
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	s.blobs[jobID] = payloadRecord{data: data, expiresAt: s.clk.Now().Add(ttl)}

	set, ok := s.sets[payableID]
	if !ok {
		set = make(map[string]struct{})
		s.sets[payableID] = set
	}
	set[jobID] = struct{}{}
	return nil
}

// RangeByScore implements JobStore.
func (s *MemoryJobStore) RangeByScore(_ context.Context, min, max float64, limit int) ([]JobEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []JobEntry
	for id, epoch := range s.index {
		score := float64(epoch)
		if score < min || score > max {
			continue
		}
		entries = append(entries, JobEntry{JobID: id, ETAEpoch: epoch})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].ETAEpoch != entries[b].ETAEpoch {
			return entries[a].ETAEpoch < entries[b].ETAEpoch
		}
		return entries[a].JobID < entries[b].JobID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// MembersForPayable implements JobStore.
func (s *MemoryJobStore) MembersForPayable(_ context.Context, payableID string) ([]IndexedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.sets[payableID]
	jobs := make([]IndexedJob, 0, len(set))
	for id := range set {
		j := IndexedJob{JobID: id}
		if epoch, ok := s.index[id]; ok {
			e := epoch
			j.ETAEpoch = &e
		}
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].JobID < jobs[b].JobID })
	return jobs, nil
}

// GetPayload implements JobStore. Expiry is evaluated lazily on read.
func (s *MemoryJobStore) GetPayload(_ context.Context, jobID string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.blobs[jobID]
	if !ok || s.clk.Now().After(rec.expiresAt) {
		return nil, false, nil
	}
	return rec.data, true, nil
}

// Remove implements JobStore.
func (s *MemoryJobStore) Remove(_ context.Context, refs []JobRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		delete(s.index, ref.JobID)
		delete(s.blobs, ref.JobID)
		if ref.PayableID != "" {
			if set, ok := s.sets[ref.PayableID]; ok {
				delete(set, ref.JobID)
				if len(set) == 0 {
					delete(s.sets, ref.PayableID)
				}
			}
		}
	}
	return nil
}

// IndexLen reports the current size of the time index. Test helper.
func (s *MemoryJobStore) IndexLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}
