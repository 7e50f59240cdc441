package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils/flag"
)

func newTestRedisStatusStore(t *testing.T) (*RedisStatusStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStatusStore(client), s
}

func TestGetRedisStatusStore(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := GetRedisStatusStore(context.Background(), flag.RedisOptions{Host: s.Host(), Port: s.Port()})
	require.Nil(t, err)
	assert.NotNil(t, store)
}

func TestGetRedisStatusStore_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	host, port := s.Host(), s.Port()
	s.Close()
	_, err := GetRedisStatusStore(context.Background(), flag.RedisOptions{Host: host, Port: port})
	assert.NotNil(t, err)
}

func TestRedisKeyParser(t *testing.T) {
	p := &RedisKeyParser{delimiter: "__"}

	assert.True(t, p.ValidateId("fetch_announcements"))
	assert.False(t, p.ValidateId("fetch__announcements"))
	assert.False(t, p.ValidateId(""))

	k, err := p.EncodeStageKey("deliver_messages")
	assert.Nil(t, err)
	assert.Equal(t, "announcer__stage__deliver_messages", k)

	_, err = p.EncodeStageKey("bad__name")
	assert.NotNil(t, err)

	stage, err := p.DecodeStageKey(k)
	assert.Nil(t, err)
	assert.Equal(t, "deliver_messages", stage)

	_, err = p.DecodeStageKey("other__key")
	assert.NotNil(t, err)
}

func TestRedisStatusStore(t *testing.T) {
	r, s := newTestRedisStatusStore(t)
	ctx := context.Background()

	_, ok, err := r.Get(ctx, "route_announcements")
	require.Nil(t, err)
	assert.False(t, ok)

	lastRun := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	nextRun := lastRun.Add(time.Minute)
	status := model.StageStatus{
		Stage:    "route_announcements",
		LastRun:  &lastRun,
		NextRun:  &nextRun,
		RunCount: 3,
		LastResult: &model.StageResult{
			Stage:     "route_announcements",
			Processed: 4,
			Created:   4,
		},
		LastError: "boom",
	}
	require.Nil(t, r.Put(ctx, status))
	assert.Equal(t, RedisFalse, s.HGet("announcer__stage__route_announcements", "running"))

	got, ok, err := r.Get(ctx, "route_announcements")
	require.Nil(t, err)
	assert.True(t, ok)
	assert.Equal(t, status, got)

	status.Running = true
	status.LastResult = nil
	status.LastError = ""
	require.Nil(t, r.Put(ctx, status))
	got, _, err = r.Get(ctx, "route_announcements")
	require.Nil(t, err)
	assert.True(t, got.Running)
	assert.Nil(t, got.LastResult)
	assert.Equal(t, "", got.LastError)
}

func TestRedisStatusStore_BadData(t *testing.T) {
	r, s := newTestRedisStatusStore(t)
	s.HSet("announcer__stage__fetch_announcements", "run_count", "many")

	_, _, err := r.Get(context.Background(), "fetch_announcements")
	assert.NotNil(t, err)
}
