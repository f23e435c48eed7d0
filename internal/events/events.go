// Package events publishes the ALE's domain events onto Kafka for the
// out-of-scope collaborators spec.md §1 names (email/push delivery,
// analytics). Grounded on user-service/internal/events/kafka.go's
// single-writer-per-topic / BaseEvent envelope idiom, reduced to the
// events C11's scheduled jobs and C9's session completion actually
// emit.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeevibe/ale/internal/config"
	"github.com/jeevibe/ale/internal/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Type enumerates the ALE's domain event types.
type Type string

const (
	TypeSessionCompleted Type = "ale.session.completed"
	TypeQuotaExhausted   Type = "ale.quota.exhausted"
	TypeTrialExpired     Type = "ale.trial.expired"
	TypeDailyEmailDue    Type = "ale.email.daily_due"
	TypeWeeklyEmailDue   Type = "ale.email.weekly_due"
	TypeRecoveryAlert    Type = "ale.alert.recovery"
)

// Envelope is the common shape every published event carries.
type Envelope struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Source    string         `json:"source"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Publisher publishes ALE domain events to Kafka. A single writer
// handles every event type since they share one topic
// (config.KafkaConfig.EventsTopic) partitioned by user_id — the
// events are low-volume compared to user-service's per-request
// activity stream, so per-type writers aren't warranted.
type Publisher struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// New constructs a Publisher writing to cfg.EventsTopic.
func New(cfg config.KafkaConfig, log *logger.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Publisher{writer: writer, log: log}
}

// Publish writes one event in up to 3 attempts, sleeping
// attempt²×100ms (100ms, then 400ms) between them — grounded on
// user-service's kafka.go publisher.
func (p *Publisher) Publish(ctx context.Context, typ Type, userID string, data map[string]any) error {
	event := Envelope{
		ID:        uuid.New().String(),
		Type:      typ,
		Source:    "ale",
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(userID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte(typ)},
		},
		Time: time.Now(),
	}

	const maxRetries = 3
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = p.writer.WriteMessages(ctx, message)
		if lastErr == nil {
			return nil
		}
		p.log.WithContext(ctx).WithField("event_type", typ).WithField("attempt", attempt).
			WithError(lastErr).Warn("failed to publish event")
		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt*attempt) * 100 * time.Millisecond)
		}
	}
	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, lastErr)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NoOp is a no-op Publisher substitute, used where an events
// dependency is optional (tests, local dev without Kafka).
type NoOp struct{}

func (NoOp) Publish(ctx context.Context, typ Type, userID string, data map[string]any) error {
	return nil
}

func (NoOp) Close() error { return nil }

// Emitter is the interface jobs/session depend on, satisfied by both
// Publisher and NoOp.
type Emitter interface {
	Publish(ctx context.Context, typ Type, userID string, data map[string]any) error
}
