package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/starledger/starbot/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	adapter := redis.NewRedisAdapterFromClient(client, "")

	return mr, adapter
}

func TestQueue_PublishAndConsume(t *testing.T) {
	_, adapter := setupTestRedis(t)

	config := Config{
		Name:              "test:queue",
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
	}

	q, err := New(adapter, config)
	require.NoError(t, err)

	ctx := context.Background()
	testData := map[string]string{"key": "value"}

	_, err = q.PublishJSON(ctx, testData)
	require.NoError(t, err)

	received := make(chan bool, 1)
	handler := func(ctx context.Context, msg *Message) error {
		var data map[string]string
		err := json.Unmarshal(msg.Data, &data)
		assert.NoError(t, err)
		assert.Equal(t, "value", data["key"])
		received <- true
		return nil
	}

	err = q.Consume(handler)
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	q.Stop(time.Second)
}

func TestQueue_FailedMessageStaysPending(t *testing.T) {
	_, adapter := setupTestRedis(t)

	config := Config{
		Name:              "test:retry:queue",
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        5,
		VisibilityTimeout: time.Hour,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
	}

	q, err := New(adapter, config)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = q.Publish(ctx, []byte("payload"))
	require.NoError(t, err)

	var attempts int32
	handler := func(ctx context.Context, msg *Message) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("handler failure")
	}

	err = q.Consume(handler)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&attempts) >= 1
	}, 2*time.Second, 20*time.Millisecond)

	q.Stop(time.Second)

	// Never acked, so the entry stays pending for reclaim.
	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingMessages)
}

func TestQueue_RequiresName(t *testing.T) {
	_, adapter := setupTestRedis(t)

	_, err := New(adapter, Config{})
	assert.Error(t, err)
}

func TestQueue_GetStats(t *testing.T) {
	_, adapter := setupTestRedis(t)

	q, err := New(adapter, Config{
		Name:          "test:stats:queue",
		ConsumerGroup: "test-group",
		ConsumerName:  "test-consumer",
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err = q.Publish(ctx, []byte("x"))
		require.NoError(t, err)
	}

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalMessages)
}
