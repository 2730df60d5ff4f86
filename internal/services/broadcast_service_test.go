package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/starledger/starbot/internal/queue"
	"github.com/starledger/starbot/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRecipients struct {
	ids []int64
}

func (s *staticRecipients) ListActiveIDs(ctx context.Context) ([]int64, error) {
	return s.ids, nil
}

// recordingNotifier is safe for concurrent delivery workers.
type recordingNotifier struct {
	mu      sync.Mutex
	sent    map[int64][]string
	failFor map[int64]bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		sent:    make(map[int64][]string),
		failFor: make(map[int64]bool),
	}
}

func (n *recordingNotifier) Notify(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[chatID] {
		return errors.New("delivery failed")
	}
	n.sent[chatID] = append(n.sent[chatID], text)
	return nil
}

func (n *recordingNotifier) messagesFor(chatID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent[chatID]...)
}

func setupBroadcast(t *testing.T, recipients []int64, notifier *recordingNotifier) *BroadcastService {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	adapter := redis.NewRedisAdapterFromClient(client, "")

	service, err := NewBroadcastService(adapter, &staticRecipients{ids: recipients}, notifier, BroadcastConfig{
		Queue: queue.Config{
			Name:              "test:broadcast",
			ConsumerGroup:     "broadcast-group",
			ConsumerName:      "broadcast-consumer",
			VisibilityTimeout: time.Hour,
			PollInterval:      20 * time.Millisecond,
			BatchSize:         10,
		},
		Workers: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.Stop(time.Second) })

	require.NoError(t, service.Start())
	return service
}

func TestBroadcastService_DeliversToAllRecipients(t *testing.T) {
	notifier := newRecordingNotifier()
	service := setupBroadcast(t, []int64{1, 2, 3}, notifier)

	runID, total, err := service.Broadcast(context.Background(), 99, "hello everyone")
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	assert.Equal(t, int64(3), total)

	require.Eventually(t, func() bool {
		for _, id := range []int64{1, 2, 3} {
			if len(notifier.messagesFor(id)) == 0 {
				return false
			}
		}
		return true
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"hello everyone"}, notifier.messagesFor(1))

	// Admin receives the run summary once the last delivery lands.
	require.Eventually(t, func() bool {
		return len(notifier.messagesFor(99)) > 0
	}, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, notifier.messagesFor(99)[0], "3 delivered, 0 failed")
}

func TestBroadcastService_CountsFailures(t *testing.T) {
	notifier := newRecordingNotifier()
	notifier.failFor[2] = true
	service := setupBroadcast(t, []int64{1, 2}, notifier)

	_, total, err := service.Broadcast(context.Background(), 99, "promo day")
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	require.Eventually(t, func() bool {
		return len(notifier.messagesFor(99)) > 0
	}, 3*time.Second, 20*time.Millisecond)
	assert.Contains(t, notifier.messagesFor(99)[0], "1 delivered, 1 failed")
}

func TestBroadcastService_NoRecipients(t *testing.T) {
	notifier := newRecordingNotifier()
	service := setupBroadcast(t, nil, notifier)

	_, total, err := service.Broadcast(context.Background(), 99, "anyone there")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}
