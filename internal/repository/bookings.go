package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"staybook/internal/database"
	"staybook/internal/models"
)

type BookingRepository struct {
	db *database.DB
}

func NewBookingRepository(db *database.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const selectBookingColumns = `
		SELECT id, listing_id, guest_id, check_in, check_out, total_price,
		       status, created_at, updated_at
		FROM bookings`

func scanBooking(row rowScanner) (*models.Booking, error) {
	booking := &models.Booking{}
	err := row.Scan(
		&booking.ID,
		&booking.ListingID,
		&booking.GuestID,
		&booking.CheckIn,
		&booking.CheckOut,
		&booking.TotalPrice,
		&booking.Status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}

	query := `
		INSERT INTO bookings (id, listing_id, guest_id, check_in, check_out, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		booking.ID,
		booking.ListingID,
		booking.GuestID,
		booking.CheckIn,
		booking.CheckOut,
		booking.TotalPrice,
		booking.Status,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, selectBookingColumns+`
		WHERE id = $1`, id))
}

func (r *BookingRepository) ListByGuest(ctx context.Context, guestID int64) ([]models.Booking, error) {
	rows, err := r.db.QueryContext(ctx, selectBookingColumns+`
		WHERE guest_id = $1
		ORDER BY created_at DESC`, guestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}

	return bookings, rows.Err()
}

// Cancel moves a pending booking without an active payment to canceled.
// The booking row is locked so a concurrent payment initiation either sees
// the cancellation or blocks it.
func (r *BookingRepository) Cancel(ctx context.Context, id string) (*models.Booking, error) {
	var canceled *models.Booking

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		booking, err := scanBooking(tx.QueryRowContext(ctx, selectBookingColumns+`
		WHERE id = $1
		FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if booking == nil {
			return ErrBookingNotFound
		}
		if booking.Status != models.BookingStatusPending {
			return ErrBookingNotPending
		}

		active, err := hasActivePayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if active {
			return ErrActivePaymentExists
		}

		err = tx.QueryRowContext(ctx, `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING updated_at`, models.BookingStatusCanceled, id).Scan(&booking.UpdatedAt)
		if err != nil {
			return err
		}

		booking.Status = models.BookingStatusCanceled
		canceled = booking
		return nil
	})
	if err != nil {
		return nil, err
	}

	return canceled, nil
}

func hasActivePayment(ctx context.Context, q database.Querier, bookingID string) (bool, error) {
	var active bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payments WHERE booking_id = $1 AND status <> 'failed'
		)`, bookingID).Scan(&active)
	return active, err
}
