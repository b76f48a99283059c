package consumers

import (
	"context"
	"log/slog"

	"github.com/nats-io/stan.go"

	"staybook/internal/models"
)

const queueGroup = "notifiers"

type Subscriber interface {
	SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error)
}

// ConsumerService owns the notification subscriptions
type ConsumerService struct {
	subscriber    Subscriber
	handlers      *Handlers
	subscriptions []stan.Subscription
}

func NewConsumerService(subscriber Subscriber, handlers *Handlers) *ConsumerService {
	return &ConsumerService{
		subscriber: subscriber,
		handlers:   handlers,
	}
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	routes := []struct {
		subject string
		handler stan.MsgHandler
	}{
		{models.EventBookingCreated, cs.handlers.HandleBookingCreated},
		{models.EventPaymentCompleted, cs.handlers.HandlePaymentCompleted},
	}

	for _, route := range routes {
		sub, err := cs.subscriber.SubscribeQueue(route.subject, queueGroup, route.handler)
		if err != nil {
			return err
		}
		cs.subscriptions = append(cs.subscriptions, sub)
	}

	slog.Info("All consumers started successfully", "count", len(cs.subscriptions))
	return nil
}

// Shutdown closes the subscriptions without unsubscribing, so the durable
// queue keeps its position for the next start.
func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	for _, sub := range cs.subscriptions {
		if err := sub.Close(); err != nil {
			slog.Error("Error closing subscription", "error", err)
		}
	}
	cs.subscriptions = nil

	return nil
}
