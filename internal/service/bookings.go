package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperr "staybook/internal/errors"
	"staybook/internal/logger"
	"staybook/internal/metrics"
	"staybook/internal/models"
	"staybook/internal/repository"
)

type CreateBookingInput struct {
	ListingID string
	GuestID   int64
	CheckIn   models.Date
	CheckOut  models.Date
}

type BookingService struct {
	bookings  BookingStore
	listings  ListingStore
	quoter    PriceQuoter
	notifier  Notifier
	publisher EventPublisher
	now       func() time.Time
}

func NewBookingService(bookings BookingStore, listings ListingStore, quoter PriceQuoter, notifier Notifier, publisher EventPublisher) *BookingService {
	return &BookingService{
		bookings:  bookings,
		listings:  listings,
		quoter:    quoter,
		notifier:  notifier,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *BookingService) Create(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	if !in.CheckIn.Before(in.CheckOut.Time) {
		return nil, apperr.InvalidInput("check-out must be after check-in")
	}
	if in.CheckIn.Before(models.NewDate(s.now()).Time) {
		return nil, apperr.InvalidInput("check-in cannot be in the past")
	}

	listing, err := s.listings.GetByID(ctx, in.ListingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	if listing == nil {
		return nil, apperr.NotFound("Listing not found")
	}

	total, err := s.quoter.Quote(ctx, listing, in.CheckIn, in.CheckOut)
	if err != nil {
		return nil, fmt.Errorf("failed to quote stay: %w", err)
	}
	if !total.IsPositive() {
		return nil, apperr.InvalidInput("total price must be greater than zero")
	}

	booking := &models.Booking{
		ListingID:  listing.ID,
		GuestID:    in.GuestID,
		CheckIn:    in.CheckIn,
		CheckOut:   in.CheckOut,
		TotalPrice: total,
		Status:     models.BookingStatusPending,
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	metrics.BookingsCreated.Inc()

	if err := s.notifier.Enqueue(ctx, booking); err != nil {
		logger.WithContext(ctx).Error("Failed to enqueue booking notification",
			"error", err,
			"booking_id", booking.ID)
	}

	return booking, nil
}

// Get returns a booking owned by guestID
func (s *BookingService) Get(ctx context.Context, id string, guestID int64) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return nil, apperr.NotFound("Booking not found")
	}
	if booking.GuestID != guestID {
		return nil, apperr.ErrForbidden
	}
	return booking, nil
}

func (s *BookingService) ListForGuest(ctx context.Context, guestID int64) ([]models.Booking, error) {
	bookings, err := s.bookings.ListByGuest(ctx, guestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// Cancel withdraws a pending booking that has no payment in flight
func (s *BookingService) Cancel(ctx context.Context, id string, guestID int64) (*models.Booking, error) {
	if _, err := s.Get(ctx, id, guestID); err != nil {
		return nil, err
	}

	booking, err := s.bookings.Cancel(ctx, id)
	switch {
	case errors.Is(err, repository.ErrBookingNotFound):
		return nil, apperr.NotFound("Booking not found")
	case errors.Is(err, repository.ErrBookingNotPending):
		return nil, apperr.Conflict("Only pending bookings can be canceled")
	case errors.Is(err, repository.ErrActivePaymentExists):
		return nil, apperr.Conflict("Booking has a payment in progress")
	case err != nil:
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	event := models.BookingCanceledEvent{
		BookingID: booking.ID,
		GuestID:   booking.GuestID,
		Timestamp: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, models.EventBookingCanceled, event); err != nil {
		logger.WithContext(ctx).Error("Failed to publish booking canceled event",
			"error", err,
			"booking_id", booking.ID)
	}

	return booking, nil
}
