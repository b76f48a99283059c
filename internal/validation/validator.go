package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"staybook/internal/models"
)

// Options describe the account and listing used to exercise the API
type Options struct {
	BaseURL   string
	Email     string
	Password  string
	ListingID string
}

// SpecValidator - проверяет контракт HTTP API на работающем сервере
type SpecValidator struct {
	opts   Options
	client *http.Client
	today  time.Time
}

// NewSpecValidator создает новый валидатор
func NewSpecValidator(opts Options) *SpecValidator {
	return &SpecValidator{
		opts:   opts,
		client: &http.Client{Timeout: 30 * time.Second},
		today:  time.Now().UTC(),
	}
}

// ValidateAll проверяет все endpoints на соответствие контракту
func (v *SpecValidator) ValidateAll() error {
	slog.Info("Validating API contract", "base_url", v.opts.BaseURL)

	booking, err := v.validateBookings()
	if err != nil {
		return fmt.Errorf("bookings validation failed: %w", err)
	}

	if err := v.validatePayments(booking); err != nil {
		return fmt.Errorf("payments validation failed: %w", err)
	}

	if err := v.validateCancel(); err != nil {
		return fmt.Errorf("cancel validation failed: %w", err)
	}

	slog.Info("All endpoints passed validation")
	return nil
}

func (v *SpecValidator) stay(offsetDays, nights int) models.CreateBookingRequest {
	checkIn := v.today.AddDate(0, 0, offsetDays)
	return models.CreateBookingRequest{
		ListingID:    v.opts.ListingID,
		CheckInDate:  models.NewDate(checkIn),
		CheckOutDate: models.NewDate(checkIn.AddDate(0, 0, nights)),
	}
}

func (v *SpecValidator) createBooking(req models.CreateBookingRequest) (*models.BookingResponse, error) {
	var created models.BookingResponse
	if err := v.expect(http.MethodPost, "/api/bookings", req, http.StatusCreated, &created); err != nil {
		return nil, err
	}
	if created.BookingID == "" {
		return nil, fmt.Errorf("POST /api/bookings: expected booking_id")
	}
	if created.Status != models.BookingStatusPending {
		return nil, fmt.Errorf("POST /api/bookings: expected status pending, got %q", created.Status)
	}
	return &created, nil
}

func (v *SpecValidator) validateBookings() (*models.BookingResponse, error) {
	slog.Info("Checking bookings endpoints...")

	created, err := v.createBooking(v.stay(30, 3))
	if err != nil {
		return nil, err
	}

	// обратный диапазон дат должен отклоняться
	reversed := v.stay(30, 3)
	reversed.CheckInDate, reversed.CheckOutDate = reversed.CheckOutDate, reversed.CheckInDate
	if err := v.expect(http.MethodPost, "/api/bookings", reversed, http.StatusBadRequest, nil); err != nil {
		return nil, err
	}

	var list models.ListBookingsResponse
	if err := v.expect(http.MethodGet, "/api/bookings", nil, http.StatusOK, &list); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("GET /api/bookings: expected non-empty list")
	}

	var fetched models.BookingResponse
	if err := v.expect(http.MethodGet, "/api/bookings/"+created.BookingID, nil, http.StatusOK, &fetched); err != nil {
		return nil, err
	}
	if fetched.TotalPrice != created.TotalPrice {
		return nil, fmt.Errorf("GET /api/bookings/:id: total_price %s differs from %s", fetched.TotalPrice, created.TotalPrice)
	}

	slog.Info("Bookings endpoints are valid")
	return created, nil
}

func (v *SpecValidator) validatePayments(booking *models.BookingResponse) error {
	slog.Info("Checking payments endpoints...")

	var initiated models.InitiatePaymentResponse
	if err := v.expect(http.MethodPost, "/api/payments/initiate",
		models.InitiatePaymentRequest{BookingID: booking.BookingID}, http.StatusOK, &initiated); err != nil {
		return err
	}
	if initiated.PaymentURL == "" || initiated.Reference == "" {
		return fmt.Errorf("POST /api/payments/initiate: expected payment_url and reference")
	}

	// повторная инициализация при активном платеже
	if err := v.expect(http.MethodPost, "/api/payments/initiate",
		models.InitiatePaymentRequest{BookingID: booking.BookingID}, http.StatusConflict, nil); err != nil {
		return err
	}

	var verified models.VerifyPaymentResponse
	if err := v.expect(http.MethodGet, "/api/payments/verify?tx_ref="+url.QueryEscape(initiated.Reference),
		nil, http.StatusOK, &verified); err != nil {
		return err
	}
	if verified.Reference != initiated.Reference {
		return fmt.Errorf("GET /api/payments/verify: reference %q differs from %q", verified.Reference, initiated.Reference)
	}

	if err := v.expect(http.MethodGet, "/api/payments/verify", nil, http.StatusBadRequest, nil); err != nil {
		return err
	}

	slog.Info("Payments endpoints are valid", "payment_status", verified.Status)
	return nil
}

func (v *SpecValidator) validateCancel() error {
	slog.Info("Checking cancel endpoint...")

	booking, err := v.createBooking(v.stay(60, 2))
	if err != nil {
		return err
	}

	path := "/api/bookings/" + booking.BookingID + "/cancel"

	var canceled models.BookingResponse
	if err := v.expect(http.MethodPatch, path, nil, http.StatusOK, &canceled); err != nil {
		return err
	}
	if canceled.Status != models.BookingStatusCanceled {
		return fmt.Errorf("PATCH %s: expected status canceled, got %q", path, canceled.Status)
	}

	if err := v.expect(http.MethodPatch, path, nil, http.StatusConflict, nil); err != nil {
		return err
	}

	slog.Info("Cancel endpoint is valid")
	return nil
}

// expect performs the request and decodes the body into out when the status matches
func (v *SpecValidator) expect(method, path string, body any, status int, out any) error {
	resp, err := v.makeRequest(method, path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != status {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: expected %d, got %d: %s", method, path, status, resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

func (v *SpecValidator) makeRequest(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, v.opts.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(v.opts.Email, v.opts.Password)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	return resp, nil
}
