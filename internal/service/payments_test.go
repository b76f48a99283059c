package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "staybook/internal/errors"
	"staybook/internal/external"
	"staybook/internal/models"
)

func TestInitiateScenario(t *testing.T) {
	f := newFixture()
	booking := f.seedBooking(models.BookingStatusPending, "500.00")
	reference := "BK-" + booking.ID

	f.gateway.initialize = func(req external.InitializeRequest) (*external.InitializeResponse, error) {
		// the payment must already be persisted as pending when the gateway is called
		assert.Equal(t, models.PaymentStatusPending, f.store.paymentStatus(reference))

		resp := &external.InitializeResponse{Status: "success"}
		resp.Data.CheckoutURL = "https://pay.example/abc"
		resp.Data.TxRef = reference
		return resp, nil
	}

	result, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})

	require.NoError(t, err)
	assert.Equal(t, &InitiatePaymentResult{
		PaymentURL: "https://pay.example/abc",
		Reference:  reference,
		Status:     "success",
	}, result)

	payments := f.store.paymentsFor(booking.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusPending, payments[0].Status)
	require.NotNil(t, payments[0].TransactionRef)
	assert.Equal(t, reference, *payments[0].TransactionRef)
	assert.Equal(t, 1, f.publisher.count(models.EventPaymentInitiated))

	require.Len(t, f.gateway.initCalls, 1)
	req := f.gateway.initCalls[0]
	assert.Equal(t, "500.00", req.Amount)
	assert.Equal(t, "ETB", req.Currency)
	assert.Equal(t, "guest@example.com", req.Email)
	assert.Equal(t, "Abebe", req.FirstName)
	assert.Equal(t, "Bikila", req.LastName)
	assert.Equal(t, reference, req.TxRef)
	assert.Equal(t, "http://localhost:8081/api/payments/verify", req.CallbackURL)
	assert.Equal(t, "http://localhost:3000/payment/success", req.ReturnURL)
	assert.Equal(t, "Payment for Lakeside Cabin", req.Customization.Title)
	assert.Equal(t, "Booking from 2025-06-01 to 2025-06-05", req.Customization.Description)
}

func TestInitiateUsesRequesterAndReturnURL(t *testing.T) {
	f := newFixture()
	booking := f.seedBooking(models.BookingStatusPending, "500.00")

	_, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{
		BookingID:   booking.ID,
		RequesterID: 8,
		ReturnURL:   "https://app.example/done",
	})

	require.NoError(t, err)
	require.Len(t, f.gateway.initCalls, 1)
	assert.Equal(t, "friend@example.com", f.gateway.initCalls[0].Email)
	assert.Equal(t, "https://app.example/done", f.gateway.initCalls[0].ReturnURL)
}

func TestInitiateStoresReferenceWhenGatewayOmitsTxRef(t *testing.T) {
	f := newFixture()
	booking := f.seedBooking(models.BookingStatusPending, "500.00")
	f.gateway.initialize = func(req external.InitializeRequest) (*external.InitializeResponse, error) {
		resp := &external.InitializeResponse{Status: "success"}
		resp.Data.CheckoutURL = "https://pay.example/abc"
		return resp, nil
	}

	_, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})

	require.NoError(t, err)
	payments := f.store.paymentsFor(booking.ID)
	require.NotNil(t, payments[0].TransactionRef)
	assert.Equal(t, "BK-"+booking.ID, *payments[0].TransactionRef)
}

func TestInitiateRejectsActivePayment(t *testing.T) {
	for _, status := range []string{models.PaymentStatusPending, models.PaymentStatusSuccessful} {
		t.Run(status, func(t *testing.T) {
			f := newFixture()
			booking := f.seedBooking(models.BookingStatusPending, "500.00")

			_, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})
			require.NoError(t, err)
			f.store.payments["BK-"+booking.ID].Status = status

			_, err = f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})

			assert.ErrorIs(t, err, apperr.ErrConflict)
			assert.Len(t, f.store.paymentsFor(booking.ID), 1)
			assert.Len(t, f.gateway.initCalls, 1)
		})
	}
}

func TestInitiateAfterFailedAttemptGetsNewReference(t *testing.T) {
	f := newFixture()
	booking := f.seedBooking(models.BookingStatusPending, "500.00")
	f.gateway.initialize = func(req external.InitializeRequest) (*external.InitializeResponse, error) {
		return nil, &external.ProviderError{StatusCode: 400, Message: "Invalid email"}
	}
	_, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})
	require.Error(t, err)

	f.gateway.initialize = nil
	result, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})

	require.NoError(t, err)
	assert.Equal(t, "BK-"+booking.ID+"-2", result.Reference)
	payments := f.store.paymentsFor(booking.ID)
	require.Len(t, payments, 2)
	assert.Equal(t, models.PaymentStatusFailed, payments[0].Status)
	assert.Equal(t, models.PaymentStatusPending, payments[1].Status)
}

func TestInitiateConcurrentAttemptsYieldOnePayment(t *testing.T) {
	f := newFixture()
	booking := f.seedBooking(models.BookingStatusPending, "500.00")

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.store.paymentsFor(booking.ID), 1)
}

func TestInitiateGatewayRejection(t *testing.T) {
	f := newFixture()
	booking := f.seedBooking(models.BookingStatusPending, "500.00")
	f.gateway.initialize = func(req external.InitializeRequest) (*external.InitializeResponse, error) {
		return nil, &external.ProviderError{StatusCode: 400, Message: "Invalid currency"}
	}

	result, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperr.ErrPaymentInitiationFailed)
	assert.ErrorIs(t, err, apperr.ErrGatewayBusinessFailure)
	assert.Equal(t, "Invalid currency", apperr.PublicMessage(err))
	assert.Equal(t, models.PaymentStatusFailed, f.store.paymentStatus("BK-"+booking.ID))
	assert.Equal(t, models.BookingStatusPending, f.store.bookingStatus(booking.ID))
	assert.Equal(t, 1, f.publisher.count(models.EventPaymentFailed))
}

func TestInitiateGatewayUnavailable(t *testing.T) {
	f := newFixture()
	booking := f.seedBooking(models.BookingStatusPending, "500.00")
	f.gateway.initialize = func(req external.InitializeRequest) (*external.InitializeResponse, error) {
		return nil, fmt.Errorf("%w: dial tcp: i/o timeout", apperr.ErrGatewayUnavailable)
	}

	_, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})

	assert.ErrorIs(t, err, apperr.ErrPaymentInitiationFailed)
	assert.ErrorIs(t, err, apperr.ErrGatewayUnavailable)
	assert.NotContains(t, apperr.PublicMessage(err), "dial tcp")
	assert.Equal(t, models.PaymentStatusFailed, f.store.paymentStatus("BK-"+booking.ID))
}

func TestInitiateMarksFailedEvenWhenRequestCanceled(t *testing.T) {
	f := newFixture()
	booking := f.seedBooking(models.BookingStatusPending, "500.00")
	ctx, cancel := context.WithCancel(context.Background())
	f.gateway.initialize = func(req external.InitializeRequest) (*external.InitializeResponse, error) {
		cancel()
		return nil, fmt.Errorf("%w: %v", apperr.ErrGatewayUnavailable, context.Canceled)
	}

	_, err := f.payments.Initiate(ctx, InitiatePaymentInput{BookingID: booking.ID})

	assert.ErrorIs(t, err, apperr.ErrGatewayUnavailable)
	assert.Equal(t, models.PaymentStatusFailed, f.store.paymentStatus("BK-"+booking.ID))
}

func TestInitiateRejections(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		total   string
		missing bool
		kind    error
	}{
		{name: "unknown booking", missing: true, kind: apperr.ErrNotFound},
		{name: "confirmed booking", status: models.BookingStatusConfirmed, total: "500.00", kind: apperr.ErrConflict},
		{name: "canceled booking", status: models.BookingStatusCanceled, total: "500.00", kind: apperr.ErrConflict},
		{name: "zero total", status: models.BookingStatusPending, total: "0", kind: apperr.ErrInvalidInput},
		{name: "negative total", status: models.BookingStatusPending, total: "-1.00", kind: apperr.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			id := "does-not-exist"
			if !tt.missing {
				id = f.seedBooking(tt.status, tt.total).ID
			}

			_, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: id})

			assert.ErrorIs(t, err, tt.kind)
			assert.Empty(t, f.store.payments)
			assert.Empty(t, f.gateway.initCalls)
		})
	}
}

func initiated(t *testing.T, f *fixture) *models.Booking {
	t.Helper()
	booking := f.seedBooking(models.BookingStatusPending, "500.00")
	_, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})
	require.NoError(t, err)
	return booking
}

func TestVerifySuccessSettlesAtomically(t *testing.T) {
	f := newFixture()
	booking := initiated(t, f)
	reference := "BK-" + booking.ID
	f.gateway.verify = verifyResponse("success")

	result, err := f.payments.Verify(context.Background(), reference)

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccessful, result.Status)
	assert.Equal(t, "500", result.Amount.String())
	assert.Equal(t, models.PaymentStatusSuccessful, f.store.paymentStatus(reference))
	assert.Equal(t, models.BookingStatusConfirmed, f.store.bookingStatus(booking.ID))
	assert.Equal(t, 1, f.publisher.count(models.EventPaymentCompleted))
}

func TestVerifyIsIdempotent(t *testing.T) {
	f := newFixture()
	booking := initiated(t, f)
	reference := "BK-" + booking.ID
	f.gateway.verify = verifyResponse("success")

	first, err := f.payments.Verify(context.Background(), reference)
	require.NoError(t, err)
	second, err := f.payments.Verify(context.Background(), reference)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, 1, f.gateway.verifyCount())
	assert.Equal(t, 1, f.publisher.count(models.EventPaymentCompleted))
	assert.Equal(t, models.BookingStatusConfirmed, f.store.bookingStatus(booking.ID))
}

func TestVerifyConcurrentCallersPublishOnce(t *testing.T) {
	f := newFixture()
	booking := initiated(t, f)
	reference := "BK-" + booking.ID
	release := make(chan struct{})
	f.gateway.verify = func(txRef string) (*external.VerifyResponse, error) {
		<-release
		return verifyResponse("success")(txRef)
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*VerifyPaymentResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.payments.Verify(context.Background(), reference)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	// let every caller reach the gateway before any of them settles
	require.Eventually(t, func() bool { return f.gateway.verifyCount() == callers }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, models.PaymentStatusSuccessful, res.Status)
	}
	assert.Equal(t, 1, f.publisher.count(models.EventPaymentCompleted))
}

func TestVerifyUnknownReference(t *testing.T) {
	f := newFixture()

	result, err := f.payments.Verify(context.Background(), "BK-doesnotexist")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 0, f.gateway.verifyCount())
	assert.Empty(t, f.publisher.events)
}

func TestVerifyFailedStatusLeavesBookingUnchanged(t *testing.T) {
	f := newFixture()
	booking := initiated(t, f)
	reference := "BK-" + booking.ID
	f.gateway.verify = verifyResponse("failed")

	result, err := f.payments.Verify(context.Background(), reference)

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, result.Status)
	assert.Equal(t, models.PaymentStatusFailed, f.store.paymentStatus(reference))
	assert.Equal(t, models.BookingStatusPending, f.store.bookingStatus(booking.ID))
	assert.Equal(t, 1, f.publisher.count(models.EventPaymentFailed))
}

func TestVerifyPendingStatusChangesNothing(t *testing.T) {
	f := newFixture()
	booking := initiated(t, f)
	reference := "BK-" + booking.ID
	f.gateway.verify = verifyResponse("pending")

	result, err := f.payments.Verify(context.Background(), reference)

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, result.Status)
	assert.Equal(t, models.PaymentStatusPending, f.store.paymentStatus(reference))
	assert.Equal(t, models.BookingStatusPending, f.store.bookingStatus(booking.ID))
}

func TestVerifyGatewayUnavailableChangesNothing(t *testing.T) {
	f := newFixture()
	booking := initiated(t, f)
	reference := "BK-" + booking.ID
	f.gateway.verify = func(string) (*external.VerifyResponse, error) {
		return nil, fmt.Errorf("%w: connection refused", apperr.ErrGatewayUnavailable)
	}

	result, err := f.payments.Verify(context.Background(), reference)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperr.ErrGatewayUnavailable)
	assert.Equal(t, models.PaymentStatusPending, f.store.paymentStatus(reference))
	assert.Equal(t, models.BookingStatusPending, f.store.bookingStatus(booking.ID))
}

func TestVerifyProviderRejectionMarksFailed(t *testing.T) {
	f := newFixture()
	booking := initiated(t, f)
	reference := "BK-" + booking.ID
	f.gateway.verify = func(string) (*external.VerifyResponse, error) {
		return nil, &external.ProviderError{StatusCode: 404, Message: "Invalid transaction or Transaction not found"}
	}

	result, err := f.payments.Verify(context.Background(), reference)

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, result.Status)
	assert.Equal(t, "Invalid transaction or Transaction not found", result.Message)
	assert.Equal(t, models.BookingStatusPending, f.store.bookingStatus(booking.ID))
}

func TestReconcileStale(t *testing.T) {
	f := newFixture()
	old := initiated(t, f)
	fresh := initiated(t, f)
	f.store.payments["BK-"+old.ID].CreatedAt = fixedNow.Add(-time.Hour)
	f.store.payments["BK-"+fresh.ID].CreatedAt = fixedNow.Add(-time.Minute)
	f.gateway.verify = verifyResponse("success")

	checked, err := f.payments.ReconcileStale(context.Background(), 15*time.Minute, 50)

	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Equal(t, models.BookingStatusConfirmed, f.store.bookingStatus(old.ID))
	assert.Equal(t, models.BookingStatusPending, f.store.bookingStatus(fresh.ID))
}

func TestVerifyGatewayOutageWithMessageKeepsPaymentPending(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusTooManyRequests, http.StatusUnauthorized} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			f := newFixture()
			booking := initiated(t, f)
			reference := "BK-" + booking.ID
			f.store.payments[reference].CreatedAt = fixedNow.Add(-time.Hour)

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"message":"Service temporarily unavailable","status":"failed"}`))
			}))
			defer server.Close()

			payments := NewPaymentService(memPayments{f.store}, memBookings{f.store}, memListings{f.store}, memUsers{f.store},
				external.NewChapaClient(external.ChapaConfig{BaseURL: server.URL, SecretKey: "CHASECK_TEST", Timeout: time.Second}),
				f.publisher, PaymentOptions{})
			payments.now = func() time.Time { return fixedNow }

			_, err := payments.Verify(context.Background(), reference)
			assert.ErrorIs(t, err, apperr.ErrGatewayUnavailable)

			checked, err := payments.ReconcileStale(context.Background(), 15*time.Minute, 50)
			require.NoError(t, err)
			assert.Equal(t, 1, checked)

			assert.Equal(t, models.PaymentStatusPending, f.store.paymentStatus(reference))
			assert.Equal(t, models.BookingStatusPending, f.store.bookingStatus(booking.ID))
			assert.Zero(t, f.publisher.count(models.EventPaymentFailed))
		})
	}
}

func TestReconcileResolvesPaymentWithoutTransactionRef(t *testing.T) {
	f := newFixture()
	booking := f.seedBooking(models.BookingStatusPending, "500.00")
	f.store.setRefErr = errors.New("pq: connection reset by peer")

	_, err := f.payments.Initiate(context.Background(), InitiatePaymentInput{BookingID: booking.ID})
	require.NoError(t, err)

	reference := "BK-" + booking.ID
	require.Nil(t, f.store.payments[reference].TransactionRef)
	f.store.payments[reference].CreatedAt = fixedNow.Add(-time.Hour)
	f.gateway.verify = verifyResponse("success")

	checked, err := f.payments.ReconcileStale(context.Background(), 15*time.Minute, 50)

	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Equal(t, models.PaymentStatusSuccessful, f.store.paymentStatus(reference))
	assert.Equal(t, models.BookingStatusConfirmed, f.store.bookingStatus(booking.ID))
}
