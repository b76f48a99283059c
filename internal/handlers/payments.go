package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"staybook/internal/models"
	"staybook/internal/service"
)

// InitiatePayment - POST /api/payments/initiate
func (h *Handlers) InitiatePayment(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.payments.Initiate(c.Request.Context(), service.InitiatePaymentInput{
		BookingID:   req.BookingID,
		RequesterID: userID,
		ReturnURL:   req.ReturnURL,
	})
	if err != nil {
		respondError(c, "initiate payment", err)
		return
	}

	c.JSON(http.StatusOK, models.InitiatePaymentResponse{
		PaymentURL: result.PaymentURL,
		Reference:  result.Reference,
		Status:     result.Status,
	})
}

// VerifyPayment - GET /api/payments/verify?tx_ref=
// The gateway calls this as callback_url with trx_ref, the return page with tx_ref.
func (h *Handlers) VerifyPayment(c *gin.Context) {
	reference := c.Query("tx_ref")
	if reference == "" {
		reference = c.Query("trx_ref")
	}
	if reference == "" {
		badRequest(c, "Transaction reference is required")
		return
	}

	result, err := h.payments.Verify(c.Request.Context(), reference)
	if err != nil {
		respondError(c, "verify payment", err)
		return
	}

	c.JSON(http.StatusOK, models.VerifyPaymentResponse{
		Reference: result.Reference,
		Status:    result.Status,
		Amount:    result.Amount.StringFixed(2),
		Message:   result.Message,
	})
}
