package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/stan.go"

	"staybook/internal/logger"
	"staybook/internal/metrics"
	"staybook/internal/models"
	"staybook/internal/notifications"
)

const (
	handlerTimeout = 20 * time.Second
	// shorter than the 30s ack wait, so a claim left by a crashed consumer
	// has expired by the time the message is redelivered
	claimLease = handlerTimeout + 5*time.Second
)

// errSkip marks messages that can never be processed; they are acked so the
// server stops redelivering them.
var errSkip = errors.New("message skipped")

type BookingLoader interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
}

type ListingLoader interface {
	GetByID(ctx context.Context, id string) (*models.Listing, error)
}

type UserLoader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Deduper records which notifications were already delivered. A claim is a
// short lease that only becomes a delivery record once confirmed.
type Deduper interface {
	Claim(ctx context.Context, key string, lease time.Duration) (bool, error)
	Confirm(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

type Handlers struct {
	bookings BookingLoader
	listings ListingLoader
	users    UserLoader
	mailer   notifications.Mailer
	dedupe   Deduper
}

func NewHandlers(bookings BookingLoader, listings ListingLoader, users UserLoader, mailer notifications.Mailer, dedupe Deduper) *Handlers {
	return &Handlers{
		bookings: bookings,
		listings: listings,
		users:    users,
		mailer:   mailer,
		dedupe:   dedupe,
	}
}

func (h *Handlers) HandleBookingCreated(m *stan.Msg) {
	h.dispatch(m, h.bookingCreated)
}

func (h *Handlers) HandlePaymentCompleted(m *stan.Msg) {
	h.dispatch(m, h.paymentCompleted)
}

// dispatch acks the message only once it was handled or deemed unprocessable.
// Anything else is left unacked for redelivery after the ack wait.
func (h *Handlers) dispatch(m *stan.Msg, fn func(ctx context.Context, data []byte) error) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	log := logger.WithFields("subject", m.Subject, "sequence", m.Sequence, "redelivered", m.Redelivered)

	err := fn(ctx, m.Data)
	if err != nil && !errors.Is(err, errSkip) {
		log.Error("Failed to process message, awaiting redelivery", "error", err)
		return
	}
	if err != nil {
		log.Warn("Dropping unprocessable message", "error", err)
	}

	if err := m.Ack(); err != nil {
		log.Error("Failed to ack message", "error", err)
	}
}

func (h *Handlers) bookingCreated(ctx context.Context, data []byte) error {
	var event models.BookingCreatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: invalid booking created event: %v", errSkip, err)
	}

	return h.deliverOnce(ctx, "booking_received", models.EventBookingCreated+":"+event.BookingID, func() error {
		booking, guest, listing, err := h.load(ctx, event.BookingID)
		if err != nil {
			return err
		}
		return h.mailer.Send(ctx, notifications.BookingReceived(guest, listing, booking))
	})
}

func (h *Handlers) paymentCompleted(ctx context.Context, data []byte) error {
	var event models.PaymentEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: invalid payment event: %v", errSkip, err)
	}

	return h.deliverOnce(ctx, "payment_confirmed", models.EventPaymentCompleted+":"+event.Reference, func() error {
		booking, guest, listing, err := h.load(ctx, event.BookingID)
		if err != nil {
			return err
		}
		return h.mailer.Send(ctx, notifications.BookingConfirmed(guest, listing, booking, &event))
	})
}

// deliverOnce runs send unless key was already delivered. A failed send
// releases the claim so the redelivered message tries again; a claim held by
// a consumer that died before confirming expires with its lease.
func (h *Handlers) deliverOnce(ctx context.Context, kind, key string, send func() error) error {
	first, err := h.dedupe.Claim(ctx, key, claimLease)
	if err != nil {
		return err
	}
	if !first {
		slog.Info("Notification already delivered", "key", key)
		metrics.Notifications.WithLabelValues(kind, "duplicate").Inc()
		return nil
	}

	if err := send(); err != nil {
		if relErr := h.dedupe.Release(ctx, key); relErr != nil {
			slog.Error("Failed to release dedupe marker", "key", key, "error", relErr)
		}
		outcome := "failed"
		if errors.Is(err, errSkip) {
			outcome = "skipped"
		}
		metrics.Notifications.WithLabelValues(kind, outcome).Inc()
		return err
	}

	// a lost confirmation only lets a later redelivery send a second copy
	if err := h.dedupe.Confirm(ctx, key); err != nil {
		slog.Error("Failed to confirm dedupe marker", "key", key, "error", err)
	}

	metrics.Notifications.WithLabelValues(kind, "sent").Inc()
	slog.Info("Notification sent", "key", key)
	return nil
}

func (h *Handlers) load(ctx context.Context, bookingID string) (*models.Booking, *models.User, *models.Listing, error) {
	booking, err := h.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return nil, nil, nil, fmt.Errorf("%w: booking %s not found", errSkip, bookingID)
	}

	guest, err := h.users.GetByID(ctx, booking.GuestID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get guest: %w", err)
	}
	if guest == nil {
		return nil, nil, nil, fmt.Errorf("%w: guest %d not found", errSkip, booking.GuestID)
	}

	listing, err := h.listings.GetByID(ctx, booking.ListingID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get listing: %w", err)
	}
	if listing == nil {
		return nil, nil, nil, fmt.Errorf("%w: listing %s not found", errSkip, booking.ListingID)
	}

	return booking, guest, listing, nil
}
