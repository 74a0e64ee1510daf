package events

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestSubscribeUnsubscribe(t *testing.T) {
	svc := NewService(newTestLogger())

	unsubscribe := svc.Subscribe("corr-1", func(event DecisionEvent) {})
	require.NotNil(t, unsubscribe)

	assert.Equal(t, 1, svc.GetSubscriberCount("corr-1"))
	assert.Equal(t, 1, svc.GetTotalSubscriberCount())

	unsubscribe()

	assert.Equal(t, 0, svc.GetSubscriberCount("corr-1"))
	assert.Equal(t, 0, svc.GetTotalSubscriberCount())
}

func TestPublishFiltersByCorrelation(t *testing.T) {
	svc := NewService(newTestLogger())

	var matched, wildcard, other atomic.Int64
	defer svc.Subscribe("corr-1", func(DecisionEvent) { matched.Add(1) })()
	defer svc.Subscribe("", func(DecisionEvent) { wildcard.Add(1) })()
	defer svc.Subscribe("corr-2", func(DecisionEvent) { other.Add(1) })()

	svc.Publish(DecisionEvent{
		ProposalID:    uuid.New(),
		CorrelationID: "corr-1",
		Decision:      "committed",
	})

	assert.Equal(t, int64(1), matched.Load())
	assert.Equal(t, int64(1), wildcard.Load())
	assert.Equal(t, int64(0), other.Load())
}

func TestPublishConcurrentSubscribers(t *testing.T) {
	svc := NewService(newTestLogger())

	var received atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := svc.Subscribe("", func(DecisionEvent) { received.Add(1) })
			defer unsub()
			svc.Publish(DecisionEvent{ProposalID: uuid.New(), Decision: "rejected"})
		}()
	}
	wg.Wait()

	// Each publish reaches at least the publishing goroutine's own subscriber.
	assert.GreaterOrEqual(t, received.Load(), int64(10))
	assert.Equal(t, 0, svc.GetTotalSubscriberCount())
}
