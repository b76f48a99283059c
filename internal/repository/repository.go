package repository

import (
	"errors"

	"github.com/lib/pq"

	"staybook/internal/database"
)

var (
	// ErrActivePaymentExists is returned when a booking already has a
	// payment that is pending or successful.
	ErrActivePaymentExists = errors.New("booking already has an active payment")
	// ErrBookingNotPending is returned when a write requires a pending booking.
	ErrBookingNotPending = errors.New("booking is not pending")
	// ErrBookingNotFound is returned by transactional writes on a missing booking.
	ErrBookingNotFound = errors.New("booking not found")
)

const pgUniqueViolation = "23505"

type Repositories struct {
	Users    *UserRepository
	Listings *ListingRepository
	Bookings *BookingRepository
	Payments *PaymentRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Users:    NewUserRepository(db),
		Listings: NewListingRepository(db),
		Bookings: NewBookingRepository(db),
		Payments: NewPaymentRepository(db),
	}
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}
