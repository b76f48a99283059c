package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"staybook/internal/models"
	"staybook/internal/service"
)

// CreateBooking - POST /api/bookings
func (h *Handlers) CreateBooking(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	booking, err := h.bookings.Create(c.Request.Context(), service.CreateBookingInput{
		ListingID: req.ListingID,
		GuestID:   userID,
		CheckIn:   req.CheckInDate,
		CheckOut:  req.CheckOutDate,
	})
	if err != nil {
		respondError(c, "create booking", err)
		return
	}

	c.JSON(http.StatusCreated, models.NewBookingResponse(booking))
}

// ListBookings - GET /api/bookings
func (h *Handlers) ListBookings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListForGuest(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "list bookings", err)
		return
	}

	response := make(models.ListBookingsResponse, len(bookings))
	for i := range bookings {
		response[i] = models.NewBookingResponse(&bookings[i])
	}

	c.JSON(http.StatusOK, response)
}

// GetBooking - GET /api/bookings/:id
func (h *Handlers) GetBooking(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	booking, err := h.bookings.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, "get booking", err)
		return
	}

	c.JSON(http.StatusOK, models.NewBookingResponse(booking))
}

// CancelBooking - PATCH /api/bookings/:id/cancel
func (h *Handlers) CancelBooking(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, "cancel booking", err)
		return
	}

	c.JSON(http.StatusOK, models.NewBookingResponse(booking))
}
