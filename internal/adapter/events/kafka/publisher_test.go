package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"atm-ledger/config"
	"atm-ledger/internal/core/domain"
	"atm-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	calls  int
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testEvent() ports.TransactionAppliedEvent {
	return ports.TransactionAppliedEvent{
		TransactionID: uuid.New(),
		Sequence:      7,
		AccountID:     uuid.New(),
		Kind:          domain.TransactionKindDeposit,
		Amount:        10000,
		NewBalance:    15000,
		OccurredAt:    time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestPublisher_PublishTransactionApplied(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, 3, time.Minute, zerolog.Nop())
	event := testEvent()

	require.NoError(t, p.PublishTransactionApplied(context.Background(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, event.AccountID.String(), string(msg.Key))
	assert.Equal(t, event.OccurredAt, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventTypeTransactionApplied, string(msg.Headers[0].Value))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "DEPOSIT", body["type"])
	assert.Equal(t, "100.00", body["amount"])
	assert.Equal(t, "150.00", body["new_balance"])
	assert.Equal(t, float64(7), body["sequence"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisher_BreakerOpensAfterFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker not available")}
	p := newPublisher(w, 2, time.Minute, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := p.PublishTransactionApplied(ctx, testEvent())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrPublisherUnavailable)
	}

	err := p.PublishTransactionApplied(ctx, testEvent())
	assert.ErrorIs(t, err, ErrPublisherUnavailable)
	assert.Equal(t, 2, w.calls, "open breaker must not reach the writer")
}

func TestPublisher_BreakerRecovers(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker not available")}
	p := newPublisher(w, 1, 10*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	require.Error(t, p.PublishTransactionApplied(ctx, testEvent()))
	assert.ErrorIs(t, p.PublishTransactionApplied(ctx, testEvent()), ErrPublisherUnavailable)

	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()
	time.Sleep(20 * time.Millisecond)

	assert.NoError(t, p.PublishTransactionApplied(ctx, testEvent()))
	assert.NoError(t, p.PublishTransactionApplied(ctx, testEvent()))
	assert.Len(t, w.msgs, 2)
}

func TestNewWriter_FlushesEachEventImmediately(t *testing.T) {
	w := newWriter(config.KafkaConfig{
		Brokers: []string{"kafka-1:9092"},
		Topic:   "ledger.transactions",
	})
	defer w.Close()

	assert.Equal(t, "ledger.transactions", w.Topic)
	assert.Equal(t, "kafka-1:9092", w.Addr.String())
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.Equal(t, 1, w.BatchSize)
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	assert.Positive(t, w.BatchTimeout)
	assert.False(t, w.Async, "events are published after commit and must be acknowledged")
}
