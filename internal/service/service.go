package service

import (
	"context"
	"time"

	"staybook/internal/external"
	"staybook/internal/models"
	"staybook/internal/repository"
)

type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	ListByGuest(ctx context.Context, guestID int64) ([]models.Booking, error)
	Cancel(ctx context.Context, id string) (*models.Booking, error)
}

type PaymentStore interface {
	Open(ctx context.Context, booking *models.Booking, currency string) (*models.Payment, error)
	GetByReference(ctx context.Context, reference string) (*models.Payment, error)
	SetTransactionRef(ctx context.Context, id, transactionRef string) error
	MarkFailed(ctx context.Context, id string) (bool, error)
	Settle(ctx context.Context, payment *models.Payment) (bool, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Payment, error)
}

type ListingStore interface {
	GetByID(ctx context.Context, id string) (*models.Listing, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Gateway is the hosted checkout provider
type Gateway interface {
	Initialize(ctx context.Context, req external.InitializeRequest) (*external.InitializeResponse, error)
	Verify(ctx context.Context, txRef string) (*external.VerifyResponse, error)
}

// Notifier schedules the asynchronous booking notification
type Notifier interface {
	Enqueue(ctx context.Context, booking *models.Booking) error
}

type EventPublisher interface {
	Publish(ctx context.Context, subject string, data any) error
}

type Services struct {
	Bookings *BookingService
	Payments *PaymentService
}

func NewServices(repos *repository.Repositories, gateway Gateway, notifier Notifier, publisher EventPublisher, opts PaymentOptions) *Services {
	return &Services{
		Bookings: NewBookingService(repos.Bookings, repos.Listings, NightlyRateQuoter{}, notifier, publisher),
		Payments: NewPaymentService(repos.Payments, repos.Bookings, repos.Listings, repos.Users, gateway, publisher, opts),
	}
}
