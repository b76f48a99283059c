package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperr "staybook/internal/errors"
	"staybook/internal/external"
	"staybook/internal/logger"
	"staybook/internal/metrics"
	"staybook/internal/models"
	"staybook/internal/repository"
)

const (
	gatewayStatusSuccess = "success"
	gatewayStatusPending = "pending"

	// bound on bookkeeping writes that must outlive a canceled request
	cleanupTimeout = 5 * time.Second
)

type PaymentOptions struct {
	Currency         string
	CallbackURL      string
	DefaultReturnURL string
}

type InitiatePaymentInput struct {
	BookingID   string
	RequesterID int64
	ReturnURL   string
}

type InitiatePaymentResult struct {
	PaymentURL string
	Reference  string
	Status     string
}

type VerifyPaymentResult struct {
	Reference string
	Status    string
	Amount    decimal.Decimal
	Message   string
}

// PaymentService coordinates a booking's payment with the gateway and keeps
// the payment and booking states consistent.
type PaymentService struct {
	payments  PaymentStore
	bookings  BookingStore
	listings  ListingStore
	users     UserStore
	gateway   Gateway
	publisher EventPublisher
	opts      PaymentOptions
	now       func() time.Time
}

func NewPaymentService(payments PaymentStore, bookings BookingStore, listings ListingStore, users UserStore, gateway Gateway, publisher EventPublisher, opts PaymentOptions) *PaymentService {
	if opts.Currency == "" {
		opts.Currency = "ETB"
	}
	if opts.DefaultReturnURL == "" {
		opts.DefaultReturnURL = "http://localhost:3000/payment/success"
	}
	return &PaymentService{
		payments:  payments,
		bookings:  bookings,
		listings:  listings,
		users:     users,
		gateway:   gateway,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
	}
}

func (s *PaymentService) Initiate(ctx context.Context, in InitiatePaymentInput) (*InitiatePaymentResult, error) {
	log := logger.WithContext(ctx).With("booking_id", in.BookingID)

	booking, err := s.bookings.GetByID(ctx, in.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return nil, apperr.NotFound("Booking not found")
	}
	if booking.Status != models.BookingStatusPending {
		return nil, apperr.Conflict("Booking is not awaiting payment")
	}
	if !booking.TotalPrice.IsPositive() {
		return nil, apperr.InvalidInput("Booking total must be greater than zero")
	}

	payer, err := s.resolvePayer(ctx, in.RequesterID, booking.GuestID)
	if err != nil {
		return nil, err
	}

	listing, err := s.listings.GetByID(ctx, booking.ListingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	if listing == nil {
		return nil, apperr.NotFound("Listing not found")
	}

	payment, err := s.payments.Open(ctx, booking, s.opts.Currency)
	switch {
	case errors.Is(err, repository.ErrActivePaymentExists):
		metrics.PaymentsInitiated.WithLabelValues("conflict").Inc()
		return nil, apperr.Conflict("Payment already initiated for this booking")
	case errors.Is(err, repository.ErrBookingNotPending):
		return nil, apperr.Conflict("Booking is not awaiting payment")
	case errors.Is(err, repository.ErrBookingNotFound):
		return nil, apperr.NotFound("Booking not found")
	case err != nil:
		return nil, fmt.Errorf("failed to open payment: %w", err)
	}
	log = log.With("reference", payment.Reference)

	returnURL := in.ReturnURL
	if returnURL == "" {
		returnURL = s.opts.DefaultReturnURL
	}

	resp, err := s.gateway.Initialize(ctx, external.InitializeRequest{
		Amount:      payment.Amount.StringFixed(2),
		Currency:    payment.Currency,
		Email:       payer.Email,
		FirstName:   payer.FirstName,
		LastName:    payer.Surname,
		TxRef:       payment.Reference,
		CallbackURL: s.opts.CallbackURL,
		ReturnURL:   returnURL,
		Customization: external.Customization{
			Title:       "Payment for " + listing.Name,
			Description: fmt.Sprintf("Booking from %s to %s", booking.CheckIn, booking.CheckOut),
		},
	})
	if err != nil {
		log.Warn("Payment initialization failed", "error", err)
		s.fail(ctx, payment, err)
		return nil, initiationError(err)
	}

	txRef := resp.Data.TxRef
	if txRef == "" {
		txRef = payment.Reference
	}
	if err := s.payments.SetTransactionRef(ctx, payment.ID, txRef); err != nil {
		// the payment stays pending and is picked up by reconciliation
		log.Error("Failed to store transaction reference", "error", err)
	}

	metrics.PaymentsInitiated.WithLabelValues("success").Inc()
	s.publish(ctx, models.EventPaymentInitiated, s.event(payment, ""))
	log.Info("Payment initiated")

	return &InitiatePaymentResult{
		PaymentURL: resp.Data.CheckoutURL,
		Reference:  payment.Reference,
		Status:     gatewayStatusSuccess,
	}, nil
}

// Verify asks the gateway for the outcome of a payment and applies it.
// Payments that already reached a terminal state are answered from storage.
func (s *PaymentService) Verify(ctx context.Context, reference string) (*VerifyPaymentResult, error) {
	payment, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if payment == nil {
		return nil, apperr.NotFound("Payment not found")
	}
	if payment.IsTerminal() {
		return verifyResult(payment, ""), nil
	}

	log := logger.WithContext(ctx).With("reference", payment.Reference, "booking_id", payment.BookingID)

	resp, err := s.gateway.Verify(ctx, payment.Reference)
	if err != nil {
		perr, ok := external.IsProviderError(err)
		if !ok {
			log.Warn("Payment verification unavailable", "error", err)
			return nil, apperr.Wrap(apperr.ErrGatewayUnavailable, "Payment gateway unavailable", err)
		}
		log.Info("Gateway rejected verification", "message", perr.Message)
		return s.markFailed(ctx, payment, perr.Message)
	}

	switch resp.Data.Status {
	case gatewayStatusSuccess:
		settled, err := s.payments.Settle(ctx, payment)
		if err != nil {
			return nil, fmt.Errorf("failed to settle payment: %w", err)
		}
		if !settled {
			return s.current(ctx, payment, resp.Message)
		}

		payment.Status = models.PaymentStatusSuccessful
		metrics.PaymentsVerified.WithLabelValues(payment.Status).Inc()
		s.publish(ctx, models.EventPaymentCompleted, s.event(payment, ""))
		log.Info("Payment settled, booking confirmed")
		return verifyResult(payment, resp.Message), nil

	case gatewayStatusPending:
		metrics.PaymentsVerified.WithLabelValues(models.PaymentStatusPending).Inc()
		return verifyResult(payment, resp.Message), nil

	default:
		log.Info("Gateway reported unsuccessful payment", "gateway_status", resp.Data.Status)
		return s.markFailed(ctx, payment, "gateway status "+resp.Data.Status)
	}
}

// ReconcileStale verifies pending payments created more than olderThan ago.
// It returns how many payments were checked.
func (s *PaymentService) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := s.payments.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale payments: %w", err)
	}

	checked := 0
	for _, payment := range stale {
		if ctx.Err() != nil {
			return checked, ctx.Err()
		}
		result, err := s.Verify(ctx, payment.Reference)
		checked++
		if err != nil {
			logger.WithContext(ctx).Warn("Failed to reconcile payment",
				"reference", payment.Reference, "error", err)
			continue
		}
		if result.Status != models.PaymentStatusPending {
			logger.WithContext(ctx).Info("Reconciled payment",
				"reference", payment.Reference, "status", result.Status)
		}
	}

	return checked, nil
}

func (s *PaymentService) resolvePayer(ctx context.Context, requesterID, guestID int64) (*models.User, error) {
	if requesterID != 0 {
		user, err := s.users.GetByID(ctx, requesterID)
		if err != nil {
			return nil, fmt.Errorf("failed to get requester: %w", err)
		}
		if user != nil {
			return user, nil
		}
	}

	guest, err := s.users.GetByID(ctx, guestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get guest: %w", err)
	}
	if guest == nil {
		return nil, apperr.NotFound("Guest not found")
	}
	return guest, nil
}

// markFailed moves the payment to failed and reports the state that storage
// actually holds afterwards.
func (s *PaymentService) markFailed(ctx context.Context, payment *models.Payment, reason string) (*VerifyPaymentResult, error) {
	changed, err := s.payments.MarkFailed(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if !changed {
		return s.current(ctx, payment, reason)
	}

	payment.Status = models.PaymentStatusFailed
	metrics.PaymentsVerified.WithLabelValues(payment.Status).Inc()
	s.publish(ctx, models.EventPaymentFailed, s.event(payment, reason))
	return verifyResult(payment, reason), nil
}

// fail records an initiation failure. The request context may already be
// done, so the write gets its own deadline.
func (s *PaymentService) fail(ctx context.Context, payment *models.Payment, cause error) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	outcome := "unavailable"
	reason := cause.Error()
	if perr, ok := external.IsProviderError(cause); ok {
		outcome = "rejected"
		reason = perr.Message
	}

	changed, err := s.payments.MarkFailed(cleanupCtx, payment.ID)
	if err != nil {
		logger.WithContext(ctx).Error("Failed to mark payment failed",
			"reference", payment.Reference, "error", err)
		return
	}
	metrics.PaymentsInitiated.WithLabelValues(outcome).Inc()
	if changed {
		payment.Status = models.PaymentStatusFailed
		s.publish(cleanupCtx, models.EventPaymentFailed, s.event(payment, reason))
	}
}

// current re-reads a payment whose transition was taken by a concurrent caller
func (s *PaymentService) current(ctx context.Context, payment *models.Payment, message string) (*VerifyPaymentResult, error) {
	latest, err := s.payments.GetByReference(ctx, payment.Reference)
	if err != nil {
		return nil, fmt.Errorf("failed to reload payment: %w", err)
	}
	if latest == nil {
		return nil, apperr.NotFound("Payment not found")
	}
	return verifyResult(latest, message), nil
}

func (s *PaymentService) event(payment *models.Payment, reason string) models.PaymentEvent {
	return models.PaymentEvent{
		BookingID: payment.BookingID,
		PaymentID: payment.ID,
		Reference: payment.Reference,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Reason:    reason,
		Timestamp: s.now().UTC(),
	}
}

func (s *PaymentService) publish(ctx context.Context, subject string, event models.PaymentEvent) {
	if err := s.publisher.Publish(ctx, subject, event); err != nil {
		logger.WithContext(ctx).Error("Failed to publish payment event",
			"error", err,
			"subject", subject,
			"reference", event.Reference)
	}
}

func verifyResult(payment *models.Payment, message string) *VerifyPaymentResult {
	return &VerifyPaymentResult{
		Reference: payment.Reference,
		Status:    payment.Status,
		Amount:    payment.Amount,
		Message:   message,
	}
}

// initiationError keeps the provider's message for refusals and hides
// transport details behind a generic one.
func initiationError(err error) error {
	if perr, ok := external.IsProviderError(err); ok {
		return apperr.Wrap(apperr.ErrPaymentInitiationFailed, perr.Message, err)
	}
	return apperr.Wrap(apperr.ErrPaymentInitiationFailed, "Payment gateway unavailable", err)
}
