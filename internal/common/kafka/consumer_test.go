package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeReader hands out queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafkago.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func fastBackOff() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

func runConsumer(t *testing.T, reader *fakeReader, handler MessageHandler, until func() bool) {
	t.Helper()
	c := newConsumer(reader, fastBackOff, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, handler) }()

	require.Eventually(t, until, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsume_RetriesTransientFailureBeforeCommitting(t *testing.T) {
	reader := &fakeReader{queue: []kafkago.Message{{Offset: 7}}}
	var mu sync.Mutex
	calls := 0

	runConsumer(t, reader, func(context.Context, kafkago.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, func() bool { return len(reader.commits()) == 1 })

	assert.Equal(t, []int64{7}, reader.commits())
	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()
}

func TestConsume_TransientFailureIsNeverCommitted(t *testing.T) {
	reader := &fakeReader{queue: []kafkago.Message{{Offset: 3}, {Offset: 4}}}
	var mu sync.Mutex
	calls := 0

	runConsumer(t, reader, func(_ context.Context, msg kafkago.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("database is down")
	}, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 5
	})

	assert.Empty(t, reader.commits())
	reader.mu.Lock()
	assert.Len(t, reader.queue, 1, "the next message must wait behind the failing one")
	reader.mu.Unlock()
}

func TestConsume_PermanentFailureIsCommittedOnce(t *testing.T) {
	reader := &fakeReader{queue: []kafkago.Message{{Offset: 1}, {Offset: 2}}}
	var mu sync.Mutex
	seen := map[int64]int{}

	runConsumer(t, reader, func(_ context.Context, msg kafkago.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen[msg.Offset]++
		if msg.Offset == 1 {
			return Permanent(errors.New("unparseable payload"))
		}
		return nil
	}, func() bool { return len(reader.commits()) == 2 })

	assert.Equal(t, []int64{1, 2}, reader.commits())
	mu.Lock()
	assert.Equal(t, map[int64]int{1: 1, 2: 1}, seen)
	mu.Unlock()
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	base := errors.New("bad")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}
