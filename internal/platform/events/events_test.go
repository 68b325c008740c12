package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	evt := New(PatientCreated, "p-1", map[string]interface{}{"registry": "DM1"})
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, PatientCreated, evt.Type)
	assert.Equal(t, "p-1", evt.SubjectID)
	assert.False(t, evt.OccurredAt.IsZero())
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	evt := New(ReviewCreated, "pr-9", nil)
	require.NoError(t, p.Publish(context.Background(), evt))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "pr-9", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, ReviewCreated, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.ID, decoded.ID)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("leader not available")}}
	err := p.Publish(context.Background(), New(PatientDeleted, "p", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func TestAMQPPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := &AMQPPublisher{channel: ch, exchange: "registry"}

	evt := New(PatientArchived, "p-2", nil)
	require.NoError(t, p.Publish(context.Background(), evt))

	assert.Equal(t, "registry", ch.exchange)
	assert.Equal(t, PatientArchived, ch.key)
	assert.Equal(t, evt.ID, ch.msg.MessageId)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.NoError(t, p.Close())
}

func TestWebhookPublisher_Publish(t *testing.T) {
	var got Event
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Event-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL)
	evt := New(QuestionnaireApproved, "qr-1", map[string]interface{}{"patient_id": "p-3"})
	require.NoError(t, p.Publish(context.Background(), evt))

	assert.Equal(t, QuestionnaireApproved, header)
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, "p-3", got.Data["patient_id"])
}

func TestWebhookPublisher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewWebhookPublisher(srv.URL)
	err := p.Publish(context.Background(), New(PatientUpdated, "p", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("broker down") }
func (failing) Close() error                         { return nil }

func TestLogged_SwallowsAndLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogged(failing{}, zerolog.New(&buf))

	assert.NoError(t, p.Publish(context.Background(), New(PatientCreated, "p-4", nil)))
	assert.Contains(t, buf.String(), "broker down")
	assert.Contains(t, buf.String(), "p-4")
}

// stalled blocks until the delivery context ends.
type stalled struct{ deadline chan bool }

func (s stalled) Publish(ctx context.Context, _ Event) error {
	_, ok := ctx.Deadline()
	s.deadline <- ok
	<-ctx.Done()
	return ctx.Err()
}
func (stalled) Close() error { return nil }

func TestLogged_BoundsSlowDelivery(t *testing.T) {
	var buf bytes.Buffer
	next := stalled{deadline: make(chan bool, 1)}
	p := NewLogged(next, zerolog.New(&buf)).WithTimeout(20 * time.Millisecond)

	start := time.Now()
	assert.NoError(t, p.Publish(context.Background(), New(PatientUpdated, "p-5", nil)))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, <-next.deadline, "delivery context should carry a deadline")
	assert.Contains(t, buf.String(), "deadline exceeded")
}

func TestNewPublisher(t *testing.T) {
	p, err := NewPublisher(Config{Backend: "none"}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, p.Publish(context.Background(), New(PatientCreated, "p", nil)))

	p, err = NewPublisher(Config{Backend: "kafka", KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Logged{}, p)

	_, err = NewPublisher(Config{Backend: "smoke-signal"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_ = r.Publish(context.Background(), New(PatientCreated, "a", nil))
	_ = r.Publish(context.Background(), New(PatientArchived, "a", nil))

	assert.Equal(t, []string{PatientCreated, PatientArchived}, r.Types())
	assert.Len(t, r.Events(), 2)

	r.Reset()
	assert.Empty(t, r.Types())
}
