package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils/flag"
)

// RedisStatusStore keeps stage status in redis hashes, so every replica of
// the service reports the same status page.
type RedisStatusStore struct {
	inner     *redis.Client
	keyParser RedisKeyParser
}

const (
	// Redis only has string type, there is no boolean or int, so we use "1" to represent true
	RedisTrue  = "1"
	RedisFalse = "0"

	redisStageKeyPrefix = "announcer"
	redisStageKeyKind   = "stage"

	fieldLastRun    = "last_run"
	fieldNextRun    = "next_run"
	fieldRunCount   = "run_count"
	fieldRunning    = "running"
	fieldLastResult = "last_result"
	fieldLastError  = "last_error"
)

func GetRedisStatusStore(ctx context.Context, opts flag.RedisOptions) (*RedisStatusStore, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", opts.Host, opts.Port),
		Password: opts.Passwd,
		DB:       0, // use default DB
	})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "cannot reach redis")
	}
	return NewRedisStatusStore(redisClient), nil
}

func NewRedisStatusStore(client *redis.Client) *RedisStatusStore {
	return &RedisStatusStore{
		inner:     client,
		keyParser: RedisKeyParser{delimiter: "__"},
	}
}

type RedisKeyParser struct {
	delimiter string
}

func (r RedisKeyParser) DecodeStageKey(key string) (string, error) {
	splits := strings.Split(key, r.delimiter)
	if len(splits) != 3 || splits[0] != redisStageKeyPrefix || splits[1] != redisStageKeyKind {
		return "", fmt.Errorf("invalid key: %s", key)
	}
	return splits[2], nil
}

func (r RedisKeyParser) ValidateId(id string) bool {
	return id != "" && !strings.Contains(id, r.delimiter)
}

func (r RedisKeyParser) EncodeStageKey(stage string) (string, error) {
	if !r.ValidateId(stage) {
		return "", fmt.Errorf("invalid stage name: %q", stage)
	}
	return strings.Join([]string{redisStageKeyPrefix, redisStageKeyKind, stage}, r.delimiter), nil
}

// Put overwrites the status of one stage.
func (r *RedisStatusStore) Put(ctx context.Context, status model.StageStatus) error {
	key, err := r.keyParser.EncodeStageKey(status.Stage)
	if err != nil {
		return err
	}
	running := RedisFalse
	if status.Running {
		running = RedisTrue
	}
	values := map[string]interface{}{
		fieldLastRun:    formatRedisTime(status.LastRun),
		fieldNextRun:    formatRedisTime(status.NextRun),
		fieldRunCount:   strconv.Itoa(status.RunCount),
		fieldRunning:    running,
		fieldLastError:  status.LastError,
		fieldLastResult: "",
	}
	if status.LastResult != nil {
		bytes, err := json.Marshal(status.LastResult)
		if err != nil {
			return errors.Wrap(err, "cannot encode stage result")
		}
		values[fieldLastResult] = string(bytes)
	}
	return r.inner.HSet(ctx, key, values).Err()
}

// Get reads the status of one stage. A stage that never reported returns a
// zero status with ok false.
func (r *RedisStatusStore) Get(ctx context.Context, stage string) (status model.StageStatus, ok bool, err error) {
	status.Stage = stage
	key, err := r.keyParser.EncodeStageKey(stage)
	if err != nil {
		return status, false, err
	}
	fields, err := r.inner.HGetAll(ctx, key).Result()
	if err != nil {
		return status, false, errors.Wrapf(err, "cannot read status of %s", stage)
	}
	if len(fields) == 0 {
		return status, false, nil
	}

	if status.LastRun, err = parseRedisTime(fields[fieldLastRun]); err != nil {
		return status, false, err
	}
	if status.NextRun, err = parseRedisTime(fields[fieldNextRun]); err != nil {
		return status, false, err
	}
	if v := fields[fieldRunCount]; v != "" {
		if status.RunCount, err = strconv.Atoi(v); err != nil {
			return status, false, errors.Wrapf(err, "bad run count of %s", stage)
		}
	}
	status.Running = fields[fieldRunning] == RedisTrue
	status.LastError = fields[fieldLastError]
	if v := fields[fieldLastResult]; v != "" {
		var res model.StageResult
		if err := json.Unmarshal([]byte(v), &res); err != nil {
			return status, false, errors.Wrapf(err, "bad result of %s", stage)
		}
		status.LastResult = &res
	}
	return status, true, nil
}

func formatRedisTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseRedisTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, errors.Wrapf(err, "bad time %q", v)
	}
	return &t, nil
}
