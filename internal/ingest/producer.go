// Package ingest consumes raw ticket batches from Kafka and publishes
// graph-build events back out.
package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/supportkg/internal/config"
)

// EventType classifies the events published after graph builds
type EventType string

const (
	EventGraphBuilt  EventType = "graph.built"
	EventTicketError EventType = "ticket.error"
)

// Event is one build-outcome event on the events topic
type Event struct {
	EventID   string    `json:"event_id"`
	Type      EventType `json:"type"`
	TicketIDs []string  `json:"ticket_ids,omitempty"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Edges     int       `json:"edges,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Producer defines the interface for publishing build events
type Producer interface {
	PublishEvent(ctx context.Context, ev Event) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
	mu     sync.Mutex
	closed bool
}

// NewProducer creates a Kafka producer for the events topic
func NewProducer(cfg config.KafkaConfig) (Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrInvalidBrokers
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.EventsTopic,
		Compression:  kafka.Gzip,
		RequiredAcks: kafka.RequireAll,
	}

	return &kafkaProducer{writer: writer}, nil
}

func (p *kafkaProducer) PublishEvent(ctx context.Context, ev Event) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProducerClosed
	}
	p.mu.Unlock()

	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.EventID),
		Value: value,
	})
}

func (p *kafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}
