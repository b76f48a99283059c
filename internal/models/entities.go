package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Booking statuses
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCanceled  = "canceled"
)

// Payment statuses. successful and failed are terminal.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusSuccessful = "successful"
	PaymentStatusFailed     = "failed"
)

// User represents a guest or a host
type User struct {
	UserID       int64     `json:"user_id" db:"user_id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	Surname      string    `json:"surname" db:"surname"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	LastLoggedIn time.Time `json:"last_logged_in" db:"last_logged_in"`
}

// Listing represents a property offered by a host
type Listing struct {
	ID            string          `json:"id" db:"id"`
	HostID        int64           `json:"host_id" db:"host_id"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description" db:"description"`
	City          string          `json:"city" db:"city"`
	Country       string          `json:"country" db:"country"`
	PricePerNight decimal.Decimal `json:"price_per_night" db:"price_per_night"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Booking represents a guest's stay at a listing
type Booking struct {
	ID         string          `json:"booking_id" db:"id"`
	ListingID  string          `json:"listing_id" db:"listing_id"`
	GuestID    int64           `json:"guest_id" db:"guest_id"`
	CheckIn    Date            `json:"check_in_date" db:"check_in"`
	CheckOut   Date            `json:"check_out_date" db:"check_out"`
	TotalPrice decimal.Decimal `json:"total_price" db:"total_price"`
	Status     string          `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Nights returns the number of nights between check-in and check-out
func (b *Booking) Nights() int {
	return b.CheckOut.DaysSince(b.CheckIn)
}

// Payment is the settlement record of a booking
type Payment struct {
	ID             string          `json:"id" db:"id"`
	BookingID      string          `json:"booking_id" db:"booking_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Currency       string          `json:"currency" db:"currency"`
	TransactionRef *string         `json:"transaction_ref" db:"transaction_ref"`
	Reference      string          `json:"reference" db:"reference"`
	Status         string          `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the payment reached successful or failed
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccessful || p.Status == PaymentStatusFailed
}

// PaymentReference derives the reconciliation reference for the n-th payment
// attempt of a booking. The first attempt is BK-<booking id>; later attempts,
// which only exist after earlier ones failed, get a numeric suffix so the
// reference stays unique.
func PaymentReference(bookingID string, attempt int) string {
	if attempt <= 1 {
		return "BK-" + bookingID
	}
	return fmt.Sprintf("BK-%s-%d", bookingID, attempt)
}
