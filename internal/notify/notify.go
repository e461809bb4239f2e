// Package notify delivers user notifications. Delivery is best effort: the
// lifecycle never fails because a channel is down.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	id "scholarship/pkg/domain"
	"scholarship/pkg/requestcontext"
)

// Message is the payload written to the notification topic.
type Message struct {
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// Publisher is the subset of the Kafka producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Kafka publishes notifications keyed by user so a user's messages stay ordered.
type Kafka struct {
	producer Publisher
	topic    string
}

func NewKafka(producer Publisher, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

func (k *Kafka) Notify(ctx context.Context, userID id.UserID, message string) error {
	msg := Message{
		UserID:    userID.String(),
		Message:   message,
		RequestID: requestcontext.RequestID(ctx),
		SentAt:    requestcontext.Now(ctx),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	headers := map[string]string{"type": "notification"}
	if err := k.producer.Publish(ctx, k.topic, []byte(msg.UserID), value, headers); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Log writes notifications to the structured log. Used when Kafka is not configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, userID id.UserID, message string) error {
	l.logger.InfoContext(ctx, "notification",
		"user_id", userID.String(),
		"message", message,
	)
	return nil
}
