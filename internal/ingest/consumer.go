package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/supportkg/internal/config"
	"github.com/supportkg/internal/engine"
	"github.com/supportkg/pkg/logger"
	"github.com/supportkg/pkg/models"
)

// ticketMessage is the wire format on the ingest topic: either a single
// ticket or a batch
type ticketMessage struct {
	Ticket  *models.RawTicket  `json:"ticket,omitempty"`
	Tickets []models.RawTicket `json:"tickets,omitempty"`
}

func (m *ticketMessage) batch() []models.RawTicket {
	if m.Ticket != nil {
		return []models.RawTicket{*m.Ticket}
	}
	return m.Tickets
}

// Consumer reads ticket batches from the ingest topic and feeds them to
// the engine's graph builder
type Consumer struct {
	reader   *kafka.Reader
	engine   *engine.Engine
	producer Producer
	log      *slog.Logger
}

// NewConsumer creates a consumer in the configured consumer group
func NewConsumer(cfg config.KafkaConfig, eng *engine.Engine, producer Producer) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrInvalidBrokers
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.ConsumerGroup,
		Topic:    cfg.IngestTopic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
		MaxWait:  cfg.MaxWait,
	})

	return &Consumer{
		reader:   reader,
		engine:   eng,
		producer: producer,
		log:      logger.With("ingest"),
	}, nil
}

// Run consumes until the context is cancelled. A malformed message is
// logged and skipped; the consumer never stops over one bad payload.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var tm ticketMessage
	if err := json.Unmarshal(msg.Value, &tm); err != nil {
		c.log.Warn("dropping undecodable ingest message",
			"offset", msg.Offset, "error", err)
		return
	}
	batch := tm.batch()
	if len(batch) == 0 {
		return
	}

	report, err := c.engine.BuildGraph(ctx, batch)
	if err != nil {
		c.log.Error("graph build from ingest failed",
			"offset", msg.Offset, "error", err)
		return
	}

	if c.producer == nil {
		return
	}
	if len(report.Built) > 0 {
		ev := Event{Type: EventGraphBuilt, TicketIDs: report.Built, Edges: report.Edges}
		if err := c.producer.PublishEvent(ctx, ev); err != nil {
			c.log.Warn("publish build event failed", "error", err)
		}
	}
	for id, reason := range report.Skipped {
		ev := Event{Type: EventTicketError, TicketID: id, Reason: reason}
		if err := c.producer.PublishEvent(ctx, ev); err != nil {
			c.log.Warn("publish skip event failed", "ticket_id", id, "error", err)
		}
	}
}

// Close stops the underlying reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
