package messaging

import (
	"context"
	"time"

	"staybook/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data any) error
}

// BookingNotifier schedules the booking notification by publishing
// booking.created for the notification consumers.
type BookingNotifier struct {
	publisher Publisher
}

func NewBookingNotifier(publisher Publisher) *BookingNotifier {
	return &BookingNotifier{publisher: publisher}
}

func (n *BookingNotifier) Enqueue(ctx context.Context, booking *models.Booking) error {
	return n.publisher.Publish(ctx, models.EventBookingCreated, models.BookingCreatedEvent{
		BookingID: booking.ID,
		ListingID: booking.ListingID,
		GuestID:   booking.GuestID,
		Timestamp: time.Now().UTC(),
	})
}
