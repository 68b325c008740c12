// Package events publishes registry domain events to an external broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	PatientCreated        = "patient.created"
	PatientUpdated        = "patient.updated"
	PatientArchived       = "patient.archived"
	PatientDeleted        = "patient.deleted"
	ReviewCreated         = "review.created"
	QuestionnaireApproved = "questionnaire.approved"
)

// Event is the envelope every backend serialises as JSON.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Site       string                 `json:"site,omitempty"`
	Registry   string                 `json:"registry,omitempty"`
	SubjectID  string                 `json:"subject_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// New stamps an event with an id and the current time.
func New(eventType, subjectID string, data map[string]interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		SubjectID:  subjectID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

func (e Event) encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return b, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// DefaultPublishTimeout bounds a single delivery on the request path.
const DefaultPublishTimeout = 3 * time.Second

// Logged wraps a publisher so that delivery failures are logged instead of
// failing the operation that raised the event.
type Logged struct {
	next    Publisher
	logger  zerolog.Logger
	timeout time.Duration
}

func NewLogged(next Publisher, logger zerolog.Logger) *Logged {
	return &Logged{next: next, logger: logger, timeout: DefaultPublishTimeout}
}

// WithTimeout overrides the per-event delivery deadline.
func (l *Logged) WithTimeout(d time.Duration) *Logged {
	l.timeout = d
	return l
}

func (l *Logged) Publish(ctx context.Context, evt Event) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.next.Publish(ctx, evt); err != nil {
		l.logger.Error().Err(err).
			Str("event_id", evt.ID).
			Str("event_type", evt.Type).
			Str("subject_id", evt.SubjectID).
			Msg("event publish failed")
		return nil
	}
	l.logger.Debug().Str("event_id", evt.ID).Str("event_type", evt.Type).Msg("event published")
	return nil
}

func (l *Logged) Close() error { return l.next.Close() }

// Config selects and configures a backend.
type Config struct {
	Backend      string
	KafkaBrokers []string
	KafkaTopic   string
	AMQPURL      string
	AMQPExchange string
	WebhookURL   string
}

// NewPublisher builds the configured backend wrapped in Logged.
func NewPublisher(cfg Config, logger zerolog.Logger) (Publisher, error) {
	var (
		p   Publisher
		err error
	)
	switch cfg.Backend {
	case "", "none":
		p = Nop{}
	case "kafka":
		p = NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case "amqp":
		p, err = NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	case "webhook":
		p = NewWebhookPublisher(cfg.WebhookURL)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewLogged(p, logger.With().Str("component", "events").Str("backend", cfg.Backend).Logger()), nil
}
