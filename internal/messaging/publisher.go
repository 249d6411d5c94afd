// Package messaging publishes new-record events to NATS JetStream so
// consumers outside this service can react to pipeline movement.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/Awuah-B/report-bot/internal/adapter"
	"github.com/Awuah-B/report-bot/internal/config"
	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/logger"
)

const subjectPrefix = "npa.records"

// Publisher emits NewRecordEvents for external consumers.
type Publisher interface {
	PublishNewRecord(ctx context.Context, event domain.NewRecordEvent) error
	Close()
}

// JetStreamPublisher publishes events to `npa.records.<stage>` on a JetStream
// stream it creates or updates at startup.
type JetStreamPublisher struct {
	conn adapter.NatsConn
	js   adapter.JetStream
}

// NewJetStreamPublisher connects to NATS and ensures the event stream exists.
func NewJetStreamPublisher(ctx context.Context, njs adapter.NatsJetStream, cfg config.NATSConfig) (*JetStreamPublisher, error) {
	conn, js, err := njs.Connect(cfg.URL,
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.StreamName, err)
	}

	logger.Info("connected to NATS JetStream",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("stream", cfg.StreamName))

	return &JetStreamPublisher{conn: conn, js: js}, nil
}

// PublishNewRecord publishes one event to the stage's subject. The event ID
// doubles as the JetStream message ID for broker-side dedup on redelivery.
func (p *JetStreamPublisher) PublishNewRecord(ctx context.Context, event domain.NewRecordEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.EventID, err)
	}

	subject := fmt.Sprintf("%s.%s", subjectPrefix, event.Stage)
	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.EventID))
	if err != nil {
		return fmt.Errorf("failed to publish event %s to %s: %w", event.EventID, subject, err)
	}

	return nil
}

// Close drains the NATS connection.
func (p *JetStreamPublisher) Close() {
	p.conn.Close()
}

// NoopPublisher discards events. Used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishNewRecord(context.Context, domain.NewRecordEvent) error { return nil }

func (NoopPublisher) Close() {}
