package retry

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// DeadLetter is a message that could not be delivered to its topic
type DeadLetter struct {
	ID            string            `json:"id"`
	OriginalTopic string            `json:"original_topic"`
	Key           string            `json:"key"`
	EventType     string            `json:"event_type"`
	Payload       json.RawMessage   `json:"payload"`
	Headers       map[string]string `json:"headers,omitempty"`
	Error         string            `json:"error"`
	Attempts      int               `json:"attempts"`
	CreatedAt     time.Time         `json:"created_at"`
	DeadAt        time.Time         `json:"dead_at"`
	Source        string            `json:"source"`
}

// JSONProducer writes a JSON value to a topic
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error
}

// DeadLetterSender writes dead letters to "<topic><suffix>"
type DeadLetterSender struct {
	producer JSONProducer
	suffix   string
	source   string
	now      func() time.Time
}

// NewDeadLetterSender creates a sender. An empty suffix defaults to ".dlq".
func NewDeadLetterSender(producer JSONProducer, suffix, source string) *DeadLetterSender {
	if suffix == "" {
		suffix = ".dlq"
	}
	return &DeadLetterSender{
		producer: producer,
		suffix:   suffix,
		source:   source,
		now:      time.Now,
	}
}

// Topic returns the dead letter topic for topic
func (s *DeadLetterSender) Topic(topic string) string {
	return topic + s.suffix
}

// Send publishes msg to the dead letter topic of its original topic
func (s *DeadLetterSender) Send(ctx context.Context, msg *DeadLetter) error {
	if msg == nil {
		return errors.New("dead letter is required")
	}
	msg.DeadAt = s.now().UTC()
	msg.Source = s.source

	headers := map[string]string{
		"content_type":   "application/json",
		"original_topic": msg.OriginalTopic,
		"event_type":     msg.EventType,
		"attempts":       strconv.Itoa(msg.Attempts),
		"source":         msg.Source,
	}
	return s.producer.ProduceJSON(ctx, s.Topic(msg.OriginalTopic), msg.Key, msg, headers)
}
