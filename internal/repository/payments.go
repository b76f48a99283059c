package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"staybook/internal/database"
	"staybook/internal/models"
)

type PaymentRepository struct {
	db *database.DB
}

func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const selectPaymentColumns = `
		SELECT id, booking_id, amount, currency, transaction_ref, reference,
		       status, created_at, updated_at
		FROM payments`

func scanPayment(row rowScanner) (*models.Payment, error) {
	payment := &models.Payment{}
	err := row.Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.Amount,
		&payment.Currency,
		&payment.TransactionRef,
		&payment.Reference,
		&payment.Status,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Open creates the pending payment for a booking. The booking row is locked
// for the duration of the check-then-insert so two concurrent initiations
// cannot both pass the active payment check; the partial unique index on
// payments(booking_id) is the storage-level backstop.
func (r *PaymentRepository) Open(ctx context.Context, booking *models.Booking, currency string) (*models.Payment, error) {
	var opened *models.Payment

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `
		SELECT status FROM bookings WHERE id = $1 FOR UPDATE`, booking.ID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrBookingNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock booking: %w", err)
		}
		if status != models.BookingStatusPending {
			return ErrBookingNotPending
		}

		var attempts, active int
		err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status <> 'failed')
		FROM payments
		WHERE booking_id = $1`, booking.ID).Scan(&attempts, &active)
		if err != nil {
			return fmt.Errorf("failed to count payments: %w", err)
		}
		if active > 0 {
			return ErrActivePaymentExists
		}

		payment := &models.Payment{
			ID:        uuid.New().String(),
			BookingID: booking.ID,
			Amount:    booking.TotalPrice,
			Currency:  currency,
			Reference: models.PaymentReference(booking.ID, attempts+1),
			Status:    models.PaymentStatusPending,
		}

		err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (id, booking_id, amount, currency, reference, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
			payment.ID,
			payment.BookingID,
			payment.Amount,
			payment.Currency,
			payment.Reference,
			payment.Status,
		).Scan(&payment.CreatedAt, &payment.UpdatedAt)
		if isUniqueViolation(err) {
			return ErrActivePaymentExists
		}
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}

		opened = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	return opened, nil
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, selectPaymentColumns+`
		WHERE reference = $1`, reference))
}

// SetTransactionRef stores the gateway's transaction reference on a pending payment
func (r *PaymentRepository) SetTransactionRef(ctx context.Context, id, transactionRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET transaction_ref = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'`, transactionRef, id)
	return err
}

// MarkFailed moves a pending payment to failed. It reports false when the
// payment had already left the pending state.
func (r *PaymentRepository) MarkFailed(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = 'failed', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Settle marks a pending payment successful and confirms its booking in a
// single transaction, so readers never observe one write without the other.
// It reports false, writing nothing, when the payment is no longer pending.
func (r *PaymentRepository) Settle(ctx context.Context, payment *models.Payment) (bool, error) {
	settled := false

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = 'successful', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, payment.ID)
		if err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		res, err = tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = 'confirmed', updated_at = NOW()
		WHERE id = $1`, payment.BookingID)
		if err != nil {
			return fmt.Errorf("failed to confirm booking: %w", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrBookingNotFound
		}

		settled = true
		return nil
	})
	if err != nil {
		return false, err
	}

	return settled, nil
}

// ListStalePending returns pending payments created before the cutoff,
// oldest first. Payments without a stored transaction ref are included: the
// gateway is queried by reference, and one that never reached it answers
// "not found".
func (r *PaymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	rows, err := r.db.QueryWithRetry(ctx, selectPaymentColumns+`
		WHERE status = 'pending'
		  AND created_at < $1
		ORDER BY created_at ASC
		LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}

	return payments, rows.Err()
}
