package domain

import (
	"strings"
	"time"
)

// Kafka topics and headers used by the payment pipeline
const (
	TopicPaymentSucceeded = "payment.succeeded"

	EventTypePaymentSucceeded = "payment.succeeded"

	HeaderEventType       = "event_type"
	HeaderDeliveryAttempt = "delivery_attempt"
	HeaderFailureReason   = "failure_reason"
)

// PaymentSucceededEvent is the signal that a hold has been paid for.
// It is delivered at least once.
type PaymentSucceededEvent struct {
	EventID       string    `json:"event_id"`
	ReservationID string    `json:"reservation_id"`
	PaymentID     string    `json:"payment_id"`
	UserID        string    `json:"user_id,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Validate checks the fields the pipeline needs
func (e *PaymentSucceededEvent) Validate() error {
	if strings.TrimSpace(e.ReservationID) == "" {
		return ErrInvalidReservationID
	}
	if strings.TrimSpace(e.PaymentID) == "" {
		return ErrInvalidPaymentID
	}
	return nil
}
