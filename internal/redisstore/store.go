// Package redisstore implements runstore.Store on Redis so build numbers and
// run history survive between gridci processes.
//
// Layout, with the default "gridci" prefix:
//
//	gridci:counter:<job>        INCR build counter
//	gridci:run:<job>:<build>    JSON encoded RunResult
//	gridci:runs:<job>           sorted set of build numbers
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/specialistvlad/gridci/internal/model"
	"github.com/specialistvlad/gridci/internal/runstore"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "gridci"

// Store is a Redis backed runstore.Store.
type Store struct {
	client *redis.Client
	prefix string
}

var _ runstore.Store = (*Store)(nil)

// Open connects to the Redis server at url (redis://host:port/db).
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(client, prefix), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) counterKey(job string) string {
	return fmt.Sprintf("%s:counter:%s", s.prefix, job)
}

func (s *Store) runKey(job string, build int) string {
	return fmt.Sprintf("%s:run:%s:%d", s.prefix, job, build)
}

func (s *Store) indexKey(job string) string {
	return fmt.Sprintf("%s:runs:%s", s.prefix, job)
}

// NextBuildNumber allocates the next build number with INCR.
func (s *Store) NextBuildNumber(ctx context.Context, job string) (int, error) {
	n, err := s.client.Incr(ctx, s.counterKey(job)).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate build number for %s: %w", job, err)
	}
	return int(n), nil
}

// Record writes the result with SETNX and adds it to the job's index.
func (s *Store) Record(ctx context.Context, result *model.RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}

	runKey := s.runKey(result.Job, result.BuildNumber)
	ok, err := s.client.SetNX(ctx, runKey, data, 0).Result()
	if err != nil {
		return fmt.Errorf("write %s: %w", runKey, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s#%d", runstore.ErrAlreadyRecorded, result.Job, result.BuildNumber)
	}

	member := redis.Z{Score: float64(result.BuildNumber), Member: strconv.Itoa(result.BuildNumber)}
	if err := s.client.ZAdd(ctx, s.indexKey(result.Job), member).Err(); err != nil {
		return fmt.Errorf("index %s: %w", runKey, err)
	}
	return nil
}

// Get reads one record.
func (s *Store) Get(ctx context.Context, job string, build int) (*model.RunResult, error) {
	data, err := s.client.Get(ctx, s.runKey(job, build)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s#%d", runstore.ErrNotFound, job, build)
	}
	if err != nil {
		return nil, err
	}

	var result model.RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode %s#%d: %w", job, build, err)
	}
	return &result, nil
}

// List reads a job's records, newest first.
func (s *Store) List(ctx context.Context, job string) ([]*model.RunResult, error) {
	members, err := s.client.ZRevRange(ctx, s.indexKey(job), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*model.RunResult, 0, len(members))
	for _, m := range members {
		build, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt index entry %q for %s: %w", m, job, err)
		}
		r, err := s.Get(ctx, job, build)
		if errors.Is(err, runstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Prune applies a retention policy to a job.
func (s *Store) Prune(ctx context.Context, job string, retention model.Retention) ([]model.ArtifactReference, error) {
	history, err := s.List(ctx, job)
	if err != nil {
		return nil, err
	}
	plan := runstore.PlanRetention(history, retention)
	if plan.Empty() {
		return nil, nil
	}

	byBuild := make(map[int]*model.RunResult, len(history))
	for _, r := range history {
		byBuild[r.BuildNumber] = r
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, b := range plan.Delete {
			pipe.Del(ctx, s.runKey(job, b))
			pipe.ZRem(ctx, s.indexKey(job), strconv.Itoa(b))
		}
		for _, b := range plan.Strip {
			stripped := *byBuild[b]
			stripped.Artifacts = nil
			data, err := json.Marshal(&stripped)
			if err != nil {
				return err
			}
			pipe.Set(ctx, s.runKey(job, b), data, 0)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prune %s: %w", job, err)
	}
	return plan.Released, nil
}
