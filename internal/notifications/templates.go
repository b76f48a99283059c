package notifications

import (
	"fmt"
	"html"

	"staybook/internal/models"
)

func recipientName(guest *models.User) string {
	if guest.FirstName == "" {
		return guest.Email
	}
	return guest.FirstName + " " + guest.Surname
}

// BookingReceived acknowledges a new booking that still awaits payment
func BookingReceived(guest *models.User, listing *models.Listing, booking *models.Booking) Message {
	return Message{
		ToEmail: guest.Email,
		ToName:  recipientName(guest),
		Subject: "Booking Confirmation",
		HTMLContent: fmt.Sprintf(
			"<p>Hi %s,</p><p>We received your booking for <strong>%s</strong> from %s to %s.</p>"+
				"<p>Total: %s. Complete the payment to confirm your stay.</p>",
			html.EscapeString(recipientName(guest)),
			html.EscapeString(listing.Name),
			booking.CheckIn, booking.CheckOut,
			booking.TotalPrice.StringFixed(2),
		),
	}
}

// BookingConfirmed is sent once the payment for a booking succeeded
func BookingConfirmed(guest *models.User, listing *models.Listing, booking *models.Booking, payment *models.PaymentEvent) Message {
	return Message{
		ToEmail: guest.Email,
		ToName:  recipientName(guest),
		Subject: "Payment Confirmation",
		HTMLContent: fmt.Sprintf(
			"<p>Hi %s,</p><p>Your booking for <strong>%s</strong> has been confirmed. 🎉</p>"+
				"<p>Check-in %s, check-out %s. Paid %s %s (reference %s).</p>",
			html.EscapeString(recipientName(guest)),
			html.EscapeString(listing.Name),
			booking.CheckIn, booking.CheckOut,
			payment.Amount.StringFixed(2), html.EscapeString(payment.Currency),
			html.EscapeString(payment.Reference),
		),
	}
}
