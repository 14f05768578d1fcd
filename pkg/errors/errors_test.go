package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		code string
	}{
		{"validation", WrapValidation("name is required"), ErrValidation, ErrCodeValidation},
		{"invalid frequency", WrapInvalidFrequency("yearly"), ErrValidation, ErrCodeInvalidFrequency},
		{"no pending payment", WrapNoPendingPayment("p-1", 2), ErrInvalidTransition, ErrCodeNoPendingPayment},
		{"payment already made", WrapPaymentAlreadyMade("p-1", 2, "confirmed"), ErrInvalidTransition, ErrCodePaymentAlreadyMade},
		{"tontine full", WrapTontineFull("t-1", 5), ErrInvalidTransition, ErrCodeTontineFull},
		{"already participant", WrapAlreadyParticipant("u-1"), ErrValidation, ErrCodeAlreadyParticipant},
		{"cycle not settled", WrapCycleNotSettled(1, 2), ErrInvalidTransition, ErrCodeCycleNotSettled},
		{"tontine not found", WrapTontineNotFound("t-1"), ErrNotFound, ErrCodeTontineNotFound},
		{"participant not found", WrapParticipantNotFound("p-1"), ErrNotFound, ErrCodeParticipantNotFound},
		{"notification not found", WrapNotificationNotFound("n-1"), ErrNotFound, ErrCodeNotificationMissing},
		{"conflict", WrapConcurrencyConflict("t-1"), ErrConcurrencyConflict, ErrCodeConcurrencyConflict},
		{"forbidden", WrapForbidden("initiator only"), ErrForbidden, ErrCodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.code, Code(tt.err))

			wrapped := fmt.Errorf("service: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind)
			assert.Equal(t, tt.code, Code(wrapped))
		})
	}
}

func TestSpecificSentinels(t *testing.T) {
	assert.ErrorIs(t, WrapInvalidFrequency("yearly"), ErrInvalidFrequency)
	assert.ErrorIs(t, WrapNoPendingPayment("p-1", 1), ErrNoPendingPayment)
	assert.NotErrorIs(t, WrapNoPendingPayment("p-1", 1), ErrValidation)
}

func TestInfrastructureErrors(t *testing.T) {
	cause := errors.New("connection refused")

	db := WrapDatabaseError(cause)
	assert.ErrorIs(t, db, cause)
	assert.Equal(t, ErrCodeDatabaseError, Code(db))
	assert.Contains(t, db.Error(), "connection refused")

	proof := WrapProofStorageError(cause)
	assert.Equal(t, ErrCodeProofStorageError, Code(proof))

	assert.Equal(t, "", Code(cause))
	assert.Equal(t, "", Code(nil))
}
