package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"staybook/internal/external"
	"staybook/internal/models"
	"staybook/internal/repository"
)

// memStore is an in-memory ledger with the same transactional guarantees as
// the Postgres repositories: one mutex stands in for the booking row lock.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]*models.User
	listings map[string]*models.Listing
	bookings map[string]*models.Booking
	payments map[string]*models.Payment
	order    []string

	setRefErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]*models.User{},
		listings: map[string]*models.Listing{},
		bookings: map[string]*models.Booking{},
		payments: map[string]*models.Payment{},
	}
}

type memBookings struct{ *memStore }
type memPayments struct{ *memStore }
type memListings struct{ *memStore }
type memUsers struct{ *memStore }

func (m memBookings) Create(_ context.Context, booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	copied := *booking
	m.bookings[booking.ID] = &copied
	return nil
}

func (m memBookings) GetByID(_ context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bookings[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, nil
}

func (m memBookings) ListByGuest(_ context.Context, guestID int64) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.GuestID == guestID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m memBookings) Cancel(_ context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	if b.Status != models.BookingStatusPending {
		return nil, repository.ErrBookingNotPending
	}
	if m.activePaymentLocked(id) {
		return nil, repository.ErrActivePaymentExists
	}
	b.Status = models.BookingStatusCanceled
	copied := *b
	return &copied, nil
}

func (m *memStore) activePaymentLocked(bookingID string) bool {
	for _, p := range m.payments {
		if p.BookingID == bookingID && p.Status != models.PaymentStatusFailed {
			return true
		}
	}
	return false
}

func (m *memStore) paymentsFor(bookingID string) []models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, ref := range m.order {
		if p := m.payments[ref]; p.BookingID == bookingID {
			out = append(out, *p)
		}
	}
	return out
}

func (m memPayments) Open(_ context.Context, booking *models.Booking, currency string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[booking.ID]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	if b.Status != models.BookingStatusPending {
		return nil, repository.ErrBookingNotPending
	}
	if m.activePaymentLocked(booking.ID) {
		return nil, repository.ErrActivePaymentExists
	}
	attempts := 0
	for _, p := range m.payments {
		if p.BookingID == booking.ID {
			attempts++
		}
	}
	p := &models.Payment{
		ID:        uuid.New().String(),
		BookingID: booking.ID,
		Amount:    b.TotalPrice,
		Currency:  currency,
		Reference: models.PaymentReference(booking.ID, attempts+1),
		Status:    models.PaymentStatusPending,
		CreatedAt: time.Now(),
	}
	m.payments[p.Reference] = p
	m.order = append(m.order, p.Reference)
	copied := *p
	return &copied, nil
}

func (m memPayments) GetByReference(_ context.Context, reference string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[reference]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (m memPayments) byID(id string) *models.Payment {
	for _, p := range m.payments {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m memPayments) SetTransactionRef(_ context.Context, id, transactionRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setRefErr != nil {
		return m.setRefErr
	}
	if p := m.byID(id); p != nil && p.Status == models.PaymentStatusPending {
		p.TransactionRef = &transactionRef
	}
	return nil
}

func (m memPayments) MarkFailed(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID(id)
	if p == nil || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusFailed
	return true, nil
}

func (m memPayments) Settle(_ context.Context, payment *models.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID(payment.ID)
	if p == nil || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	b, ok := m.bookings[p.BookingID]
	if !ok {
		return false, repository.ErrBookingNotFound
	}
	p.Status = models.PaymentStatusSuccessful
	b.Status = models.BookingStatusConfirmed
	return true, nil
}

func (m memPayments) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payment
	for _, ref := range m.order {
		p := m.payments[ref]
		if p.Status == models.PaymentStatusPending && p.CreatedAt.Before(createdBefore) {
			out = append(out, *p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m memListings) GetByID(_ context.Context, id string) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.listings[id]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, nil
}

func (m memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) bookingStatus(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bookings[id].Status
}

func (m *memStore) paymentStatus(reference string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[reference].Status
}

type fakeGateway struct {
	mu          sync.Mutex
	initialize  func(req external.InitializeRequest) (*external.InitializeResponse, error)
	verify      func(txRef string) (*external.VerifyResponse, error)
	initCalls   []external.InitializeRequest
	verifyCalls int
}

func (g *fakeGateway) Initialize(_ context.Context, req external.InitializeRequest) (*external.InitializeResponse, error) {
	g.mu.Lock()
	g.initCalls = append(g.initCalls, req)
	fn := g.initialize
	g.mu.Unlock()
	if fn == nil {
		resp := &external.InitializeResponse{Status: "success"}
		resp.Data.CheckoutURL = "https://pay.example/" + req.TxRef
		resp.Data.TxRef = req.TxRef
		return resp, nil
	}
	return fn(req)
}

func (g *fakeGateway) Verify(_ context.Context, txRef string) (*external.VerifyResponse, error) {
	g.mu.Lock()
	g.verifyCalls++
	fn := g.verify
	g.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("unexpected verify of %s", txRef)
	}
	return fn(txRef)
}

func (g *fakeGateway) verifyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls
}

func verifyResponse(status string) func(string) (*external.VerifyResponse, error) {
	return func(txRef string) (*external.VerifyResponse, error) {
		resp := &external.VerifyResponse{Status: "success", Message: "Payment details"}
		resp.Data.Status = status
		resp.Data.TxRef = txRef
		return resp, nil
	}
}

type published struct {
	subject string
	data    any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) count(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.subject == subject {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (n *fakeNotifier) Enqueue(_ context.Context, booking *models.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.enqueued = append(n.enqueued, booking.ID)
	return nil
}

type fixture struct {
	store     *memStore
	gateway   *fakeGateway
	publisher *fakePublisher
	notifier  *fakeNotifier
	bookings  *BookingService
	payments  *PaymentService
	listing   *models.Listing
	guest     *models.User
}

var fixedNow = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

func newFixture() *fixture {
	store := newMemStore()
	guest := &models.User{UserID: 7, Email: "guest@example.com", FirstName: "Abebe", Surname: "Bikila"}
	listing := &models.Listing{ID: "listing-1", HostID: 1, Name: "Lakeside Cabin", PricePerNight: decimal.RequireFromString("125.00")}
	store.users[guest.UserID] = guest
	store.users[8] = &models.User{UserID: 8, Email: "friend@example.com", FirstName: "Tirunesh", Surname: "Dibaba"}
	store.listings[listing.ID] = listing

	f := &fixture{
		store:     store,
		gateway:   &fakeGateway{},
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		listing:   listing,
		guest:     guest,
	}
	f.bookings = NewBookingService(memBookings{store}, memListings{store}, NightlyRateQuoter{}, f.notifier, f.publisher)
	f.bookings.now = func() time.Time { return fixedNow }
	f.payments = NewPaymentService(memPayments{store}, memBookings{store}, memListings{store}, memUsers{store}, f.gateway, f.publisher, PaymentOptions{
		Currency:    "ETB",
		CallbackURL: "http://localhost:8081/api/payments/verify",
	})
	f.payments.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) seedBooking(status string, total string) *models.Booking {
	b := &models.Booking{
		ID:         uuid.New().String(),
		ListingID:  f.listing.ID,
		GuestID:    f.guest.UserID,
		CheckIn:    models.NewDate(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
		CheckOut:   models.NewDate(time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)),
		TotalPrice: decimal.RequireFromString(total),
		Status:     status,
	}
	f.store.bookings[b.ID] = b
	return b
}
