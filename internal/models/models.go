package models

// CreateBookingRequest - POST /api/bookings body
type CreateBookingRequest struct {
	ListingID    string `json:"listing_id" binding:"required"`
	CheckInDate  Date   `json:"check_in_date" binding:"required"`
	CheckOutDate Date   `json:"check_out_date" binding:"required"`
}

// BookingResponse - booking representation returned by the API
type BookingResponse struct {
	BookingID    string `json:"booking_id"`
	ListingID    string `json:"listing_id"`
	GuestID      int64  `json:"guest_id"`
	CheckInDate  string `json:"check_in_date"`
	CheckOutDate string `json:"check_out_date"`
	TotalPrice   string `json:"total_price"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// ListBookingsResponse - list of the guest's bookings
type ListBookingsResponse []BookingResponse

// NewBookingResponse renders a booking for the API
func NewBookingResponse(b *Booking) BookingResponse {
	return BookingResponse{
		BookingID:    b.ID,
		ListingID:    b.ListingID,
		GuestID:      b.GuestID,
		CheckInDate:  b.CheckIn.String(),
		CheckOutDate: b.CheckOut.String(),
		TotalPrice:   b.TotalPrice.StringFixed(2),
		Status:       b.Status,
		CreatedAt:    b.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// InitiatePaymentRequest - POST /api/payments/initiate body
type InitiatePaymentRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
	ReturnURL string `json:"return_url,omitempty"`
}

// InitiatePaymentResponse - hosted checkout details
type InitiatePaymentResponse struct {
	PaymentURL string `json:"payment_url"`
	Reference  string `json:"reference"`
	Status     string `json:"status"`
}

// VerifyPaymentResponse - GET /api/payments/verify result
type VerifyPaymentResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    string `json:"amount"`
	Message   string `json:"message,omitempty"`
}

// ErrorResponse - body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}
