package errors

import (
	"errors"
	"fmt"
)

// Error kinds. Every BusinessError unwraps to exactly one of these.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrNotFound            = errors.New("not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrForbidden           = errors.New("forbidden")
)

// Domain errors
var (
	ErrTontineNotFound     = fmt.Errorf("tontine not found: %w", ErrNotFound)
	ErrParticipantNotFound = fmt.Errorf("participant not found: %w", ErrNotFound)
	ErrPaymentNotFound     = fmt.Errorf("payment not found: %w", ErrNotFound)
	ErrNotificationMissing = fmt.Errorf("notification not found: %w", ErrNotFound)
	ErrInvalidFrequency    = fmt.Errorf("invalid frequency: %w", ErrValidation)
	ErrNoPendingPayment    = fmt.Errorf("no pending payment: %w", ErrInvalidTransition)
	ErrPaymentAlreadyMade  = fmt.Errorf("payment already submitted: %w", ErrInvalidTransition)
	ErrTontineFull         = fmt.Errorf("tontine is full: %w", ErrInvalidTransition)
	ErrAlreadyParticipant  = fmt.Errorf("user already participates: %w", ErrValidation)
	ErrCycleNotSettled     = fmt.Errorf("cycle not settled: %w", ErrInvalidTransition)
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInvalidFrequency    = "INVALID_FREQUENCY"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeNoPendingPayment    = "NO_PENDING_PAYMENT"
	ErrCodePaymentAlreadyMade  = "PAYMENT_ALREADY_SUBMITTED"
	ErrCodeTontineFull         = "TONTINE_FULL"
	ErrCodeAlreadyParticipant  = "ALREADY_PARTICIPANT"
	ErrCodeCycleNotSettled     = "CYCLE_NOT_SETTLED"
	ErrCodeTontineNotFound     = "TONTINE_NOT_FOUND"
	ErrCodeParticipantNotFound = "PARTICIPANT_NOT_FOUND"
	ErrCodeNotificationMissing = "NOTIFICATION_NOT_FOUND"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
	ErrCodeProofStorageError   = "PROOF_STORAGE_ERROR"
)

// Code returns the BusinessError code carried by err, or "" if none.
func Code(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func WrapValidation(message string) *BusinessError {
	return NewBusinessError(ErrCodeValidation, message, ErrValidation)
}

func WrapInvalidFrequency(frequency string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidFrequency,
		fmt.Sprintf("Frequency %q is not supported or is missing its day count", frequency),
		ErrInvalidFrequency,
	)
}

func WrapInvalidTransition(message string) *BusinessError {
	return NewBusinessError(ErrCodeInvalidTransition, message, ErrInvalidTransition)
}

func WrapNoPendingPayment(participantID string, cycle int) *BusinessError {
	return NewBusinessError(
		ErrCodeNoPendingPayment,
		fmt.Sprintf("Participant %s has no payment awaiting validation for cycle %d", participantID, cycle),
		ErrNoPendingPayment,
	)
}

func WrapPaymentAlreadyMade(participantID string, cycle int, status string) *BusinessError {
	return NewBusinessError(
		ErrCodePaymentAlreadyMade,
		fmt.Sprintf("Participant %s already has a %s payment for cycle %d", participantID, status, cycle),
		ErrPaymentAlreadyMade,
	)
}

func WrapTontineFull(tontineID string, max int) *BusinessError {
	return NewBusinessError(
		ErrCodeTontineFull,
		fmt.Sprintf("Tontine %s already has its maximum of %d participants", tontineID, max),
		ErrTontineFull,
	)
}

func WrapAlreadyParticipant(userID string) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyParticipant,
		fmt.Sprintf("User %s already participates in this tontine", userID),
		ErrAlreadyParticipant,
	)
}

func WrapCycleNotSettled(cycle, outstanding int) *BusinessError {
	return NewBusinessError(
		ErrCodeCycleNotSettled,
		fmt.Sprintf("Cycle %d still has %d unconfirmed payments", cycle, outstanding),
		ErrCycleNotSettled,
	)
}

func WrapTontineNotFound(tontineID string) *BusinessError {
	return NewBusinessError(
		ErrCodeTontineNotFound,
		fmt.Sprintf("Tontine with ID %s not found", tontineID),
		ErrTontineNotFound,
	)
}

func WrapParticipantNotFound(participantID string) *BusinessError {
	return NewBusinessError(
		ErrCodeParticipantNotFound,
		fmt.Sprintf("Participant with ID %s not found", participantID),
		ErrParticipantNotFound,
	)
}

func WrapNotificationNotFound(notificationID string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotificationMissing,
		fmt.Sprintf("Notification with ID %s not found", notificationID),
		ErrNotificationMissing,
	)
}

func WrapConcurrencyConflict(tontineID string) *BusinessError {
	return NewBusinessError(
		ErrCodeConcurrencyConflict,
		fmt.Sprintf("Tontine %s was modified concurrently", tontineID),
		ErrConcurrencyConflict,
	)
}

func WrapForbidden(message string) *BusinessError {
	return NewBusinessError(ErrCodeForbidden, message, ErrForbidden)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapProofStorageError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeProofStorageError,
		"payment proof could not be stored",
		err,
	)
}
