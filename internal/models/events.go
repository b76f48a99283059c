package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NATS Event Types
const (
	EventBookingCreated   = "booking.created"
	EventBookingCanceled  = "booking.canceled"
	EventPaymentInitiated = "payment.initiated"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
)

// BookingCreatedEvent is the notification task emitted for every new booking
type BookingCreatedEvent struct {
	BookingID string    `json:"booking_id"`
	ListingID string    `json:"listing_id"`
	GuestID   int64     `json:"guest_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCanceledEvent represents a booking cancellation
type BookingCanceledEvent struct {
	BookingID string    `json:"booking_id"`
	GuestID   int64     `json:"guest_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentEvent is emitted on payment initiation, completion and failure
type PaymentEvent struct {
	BookingID string          `json:"booking_id"`
	PaymentID string          `json:"payment_id"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
