package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"

	"staybook/internal/logger"
)

const ackWait = 30 * time.Second

type NATSClient struct {
	conn stan.Conn
}

type Config struct {
	URL       string
	ClusterID string
	ClientID  string
}

func NewNATSClient(cfg Config) (*NATSClient, error) {
	// Unique suffix so several replicas can share one configured client id
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	conn, err := stan.Connect(cfg.ClusterID, clientID,
		stan.NatsURL(cfg.URL),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			slog.Error("NATS Streaming connection lost", "error", reason)
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	slog.Info("Connected to NATS Streaming",
		"url", cfg.URL, "cluster", cfg.ClusterID, "client", clientID)

	return &NATSClient{conn: conn}, nil
}

// Publish serialises data as JSON and hands it to the streaming server
// without waiting for the server ack. A missing ack is only logged.
func (nc *NATSClient) Publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	log := logger.WithContext(ctx)
	_, err = nc.conn.PublishAsync(subject, payload, func(guid string, ackErr error) {
		if ackErr != nil {
			log.Error("Publish not acknowledged", "subject", subject, "guid", guid, "error", ackErr)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	log.Debug("Published message", "subject", subject)
	return nil
}

// SubscribeQueue joins a durable queue group in manual ack mode. Handlers
// must call Ack once the message is fully processed; unacked messages are
// redelivered after the ack wait.
func (nc *NATSClient) SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error) {
	sub, err := nc.conn.QueueSubscribe(subject, queue, handler,
		stan.DurableName(subject+"-"+queue+"-durable"),
		stan.SetManualAckMode(),
		stan.AckWait(ackWait),
		stan.MaxInflight(1))
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to subject %s: %w", subject, err)
	}

	slog.Info("Subscribed to subject", "subject", subject, "queue", queue)
	return sub, nil
}

func (nc *NATSClient) Close() error {
	if nc.conn != nil {
		return nc.conn.Close()
	}
	return nil
}
