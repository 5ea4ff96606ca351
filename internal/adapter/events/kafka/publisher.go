package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"atm-ledger/config"
	"atm-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

// EventTypeTransactionApplied is the event-type header of ledger events.
const EventTypeTransactionApplied = "transaction.applied"

const (
	headerEventType     = "event-type"
	defaultWriteTimeout = 5 * time.Second

	// WriteMessages is called inline after commit with one message, so the
	// writer must flush at once instead of waiting out kafka-go's 1s batch.
	batchTimeout = 5 * time.Millisecond
	batchSize    = 1
)

// ErrPublisherUnavailable is returned while the breaker is open.
var ErrPublisherUnavailable = errors.New("kafka publisher unavailable")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ports.EventPublisher on a kafka-go Writer. Messages
// are keyed by account id, so one account's events stay in order on one
// partition. A circuit breaker stops callers from waiting on a dead cluster.
type Publisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewPublisher creates a Publisher writing to cfg.Topic on cfg.Brokers. No
// connection is made until the first event is published.
func NewPublisher(cfg config.KafkaConfig, log zerolog.Logger) *Publisher {
	return newPublisher(newWriter(cfg), cfg.BreakerMaxFailures, cfg.BreakerTimeout, log)
}

func newWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: defaultWriteTimeout,
		BatchTimeout: batchTimeout,
		BatchSize:    batchSize,
	}
}

func newPublisher(w messageWriter, maxFailures uint32, openTimeout time.Duration, log zerolog.Logger) *Publisher {
	if maxFailures == 0 {
		maxFailures = 5
	}
	log = log.With().Str("component", "kafka_publisher").Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka-ledger-events",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &Publisher{writer: w, breaker: breaker, log: log}
}

// PublishTransactionApplied writes one event for a committed mutation.
func (p *Publisher) PublishTransactionApplied(ctx context.Context, event ports.TransactionAppliedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transaction event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AccountID.String()),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(EventTypeTransactionApplied)},
		},
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrPublisherUnavailable, err)
		}
		return fmt.Errorf("write transaction event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
