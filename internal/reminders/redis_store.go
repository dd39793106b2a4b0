package reminders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout. A single sorted set orders all pending jobs by ETA; each
// job has its own payload string key with a TTL; each payable has a plain
// set of its job IDs for reverse lookup.
const (
	timeIndexKey     = "reminder_jobs"
	payloadKeyPrefix = "reminder_job:"
	payableKeyPrefix = "reminder_jobs_by_payable:"
)

// RedisJobStore implements JobStore on Redis. Mutations use the store's
// native atomic primitives (ZADD NX for conditional add, pipelined deletes),
// so no client-side read-modify-write windows are introduced.
type RedisJobStore struct {
	rdb redis.UniversalClient
}

// NewRedisJobStore creates a RedisJobStore on the given client.
func NewRedisJobStore(rdb redis.UniversalClient) *RedisJobStore {
	return &RedisJobStore{rdb: rdb}
}

var _ JobStore = (*RedisJobStore)(nil)

// RedisHealthProbe pings the job store for the health endpoint.
type RedisHealthProbe struct {
	Client redis.UniversalClient
}

func (p RedisHealthProbe) Name() string { return "redis" }

func (p RedisHealthProbe) Check(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}

func payloadKey(jobID string) string { return payloadKeyPrefix + jobID }
func payableKey(payID string) string { return payableKeyPrefix + payID }

// Put writes the payload with its TTL, conditionally adds the job to the
// time index (ZADD NX — a no-op when present, which is what makes
// re-scheduling idempotent while still refreshing the TTL), and adds the job
// to the payable's set. The three writes ride one pipeline.
func (s *RedisJobStore) Put(ctx context.Context, jobID, payableID string, etaEpoch int64, payload []byte, ttl time.Duration) error {
	pipe := s.rdb.Pipeline()
	pipe.ZAddNX(ctx, timeIndexKey, redis.Z{Score: float64(etaEpoch), Member: jobID})
	pipe.Set(ctx, payloadKey(jobID), payload, ttl)
	pipe.SAdd(ctx, payableKey(payableID), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put for job %s: %w", jobID, err)
	}
	return nil
}

// RangeByScore returns time-index members with scores in [min, max],
// ascending, capped at limit.
func (s *RedisJobStore) RangeByScore(ctx context.Context, min, max float64, limit int) ([]JobEntry, error) {
	zs, err := s.rdb.ZRangeByScoreWithScores(ctx, timeIndexKey, &redis.ZRangeBy{
		Min:   formatScore(min),
		Max:   formatScore(max),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis range query: %w", err)
	}

	entries := make([]JobEntry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, JobEntry{JobID: id, ETAEpoch: int64(z.Score)})
	}
	return entries, nil
}

// MembersForPayable reads the payable's set and annotates each member with
// its current time-index score via a pipelined ZSCORE batch. Members absent
// from the index come back with a nil epoch.
func (s *RedisJobStore) MembersForPayable(ctx context.Context, payableID string) ([]IndexedJob, error) {
	ids, err := s.rdb.SMembers(ctx, payableKey(payableID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis reverse-index read for payable %s: %w", payableID, err)
	}
	if len(ids) == 0 {
		return []IndexedJob{}, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.FloatCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.ZScore(ctx, timeIndexKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis score lookup for payable %s: %w", payableID, err)
	}

	jobs := make([]IndexedJob, len(ids))
	for i, id := range ids {
		jobs[i] = IndexedJob{JobID: id}
		score, serr := cmds[i].Result()
		if serr == nil {
			epoch := int64(score)
			jobs[i].ETAEpoch = &epoch
		}
	}
	return jobs, nil
}

// GetPayload returns the payload record, or ok=false when it has expired or
// was never written.
func (s *RedisJobStore) GetPayload(ctx context.Context, jobID string) ([]byte, bool, error) {
	raw, err := s.rdb.Get(ctx, payloadKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis payload read for job %s: %w", jobID, err)
	}
	return raw, true, nil
}

// Remove deletes payloads, time-index members, and reverse-index memberships
// for the given jobs in one pipelined write. The pipeline is for efficiency,
// not atomicity: every deletion is idempotent, so a partially applied batch
// is healed by re-running the sweep.
func (s *RedisJobStore) Remove(ctx context.Context, refs []JobRef) error {
	if len(refs) == 0 {
		return nil
	}

	delKeys := make([]string, 0, len(refs))
	members := make([]interface{}, 0, len(refs))
	byPayable := make(map[string][]interface{})
	for _, ref := range refs {
		delKeys = append(delKeys, payloadKey(ref.JobID))
		members = append(members, ref.JobID)
		if ref.PayableID != "" {
			byPayable[ref.PayableID] = append(byPayable[ref.PayableID], ref.JobID)
		}
	}

	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, delKeys...)
	pipe.ZRem(ctx, timeIndexKey, members...)
	for payID, ids := range byPayable {
		pipe.SRem(ctx, payableKey(payID), ids...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis batched removal of %d jobs: %w", len(refs), err)
	}
	return nil
}

// formatScore renders a score bound for ZRANGEBYSCORE, mapping infinities to
// the Redis -inf/+inf sentinels.
func formatScore(v float64) string {
	switch {
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsInf(v, 1):
		return "+inf"
	default:
		return strconv.FormatInt(int64(v), 10)
	}
}
