package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "staybook/internal/errors"
	"staybook/internal/logger"
	"staybook/internal/middleware"
	"staybook/internal/models"
	"staybook/internal/service"
)

type BookingAPI interface {
	Create(ctx context.Context, in service.CreateBookingInput) (*models.Booking, error)
	Get(ctx context.Context, id string, guestID int64) (*models.Booking, error)
	ListForGuest(ctx context.Context, guestID int64) ([]models.Booking, error)
	Cancel(ctx context.Context, id string, guestID int64) (*models.Booking, error)
}

type PaymentAPI interface {
	Initiate(ctx context.Context, in service.InitiatePaymentInput) (*service.InitiatePaymentResult, error)
	Verify(ctx context.Context, reference string) (*service.VerifyPaymentResult, error)
}

type Handlers struct {
	bookings BookingAPI
	payments PaymentAPI
}

func NewHandlers(bookings BookingAPI, payments PaymentAPI) *Handlers {
	return &Handlers{
		bookings: bookings,
		payments: payments,
	}
}

// statusFor maps an error kind to its HTTP status. Unavailability is checked
// first because a failed initiation can carry it as its cause.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrPaymentInitiationFailed),
		errors.Is(err, apperr.ErrGatewayBusinessFailure):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, action string, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	log := logger.WithContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error("Failed to "+action, "error", err)
	} else {
		log.Info("Rejected "+action, "status", status, "error", err)
	}

	c.JSON(status, models.ErrorResponse{Error: apperr.PublicMessage(err)})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: message})
}

// currentUser returns the authenticated user id or writes a 401
func currentUser(c *gin.Context) (int64, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, "authenticate", apperr.ErrUnauthorized)
		return 0, false
	}
	return userID, true
}
