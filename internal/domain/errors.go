package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Slot errors
	ErrSlotNotFound     = errors.New("slot not found")
	ErrSlotFullyBooked  = errors.New("slot is fully booked")
	ErrOfferingNotFound = errors.New("offering not found")

	// Reservation errors
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrReservationExpired     = errors.New("reservation has expired")
	ErrReservationAlreadyPaid = errors.New("reservation has already been paid")
	ErrDuplicateReservation   = errors.New("user already holds a reservation for this slot")

	// Booking errors
	ErrBookingNotFound         = errors.New("booking not found")
	ErrBookingAlreadyCancelled = errors.New("booking is already cancelled")
	ErrBookingTimeNotPassed    = errors.New("booking time has not passed yet")
	ErrBookingReferenceTaken   = errors.New("booking reference already in use")

	// Access errors
	ErrUnauthorizedAccess = errors.New("unauthorized access")

	// Validation errors
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidSlotID        = errors.New("invalid slot id")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidReservationID = errors.New("invalid reservation id")
	ErrInvalidPaymentID     = errors.New("invalid payment id")
	ErrInvalidTotalPrice    = errors.New("total price cannot be negative")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
)

// BookingStatusError is returned when a transition is not allowed from the
// booking's current status. It matches ErrBookingAlreadyCancelled with errors.Is.
type BookingStatusError struct {
	Status BookingStatus
	Action string
}

func (e *BookingStatusError) Error() string {
	return fmt.Sprintf("cannot mark a %s booking as %s", e.Status, e.Action)
}

func (e *BookingStatusError) Is(target error) bool {
	return target == ErrBookingAlreadyCancelled
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrOfferingNotFound) ||
		errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrBookingNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidSlotID) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidReservationID) ||
		errors.Is(err, ErrInvalidPaymentID) ||
		errors.Is(err, ErrInvalidTotalPrice) ||
		errors.Is(err, ErrInvalidBookingStatus)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSlotFullyBooked) ||
		errors.Is(err, ErrReservationAlreadyPaid) ||
		errors.Is(err, ErrDuplicateReservation)
}

// IsTerminalFinalizationError reports errors that no redelivery of a payment
// signal can fix
func IsTerminalFinalizationError(err error) bool {
	return errors.Is(err, ErrReservationExpired) ||
		errors.Is(err, ErrReservationAlreadyPaid) ||
		IsValidationError(err)
}
