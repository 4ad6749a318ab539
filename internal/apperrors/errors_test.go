package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("create payment: %w", Validationf("amount must be greater than %d", 0))

	assert.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "create payment: amount must be greater than 0", err.Error())
}

func TestInvalidTransitionError(t *testing.T) {
	var err error = &InvalidTransitionError{From: "verified", To: "rejected"}

	assert.Equal(t, "invalid status transition: verified → rejected", err.Error())
	assert.True(t, errors.Is(err, ErrValidation))

	var target *InvalidTransitionError
	assert.True(t, errors.As(fmt.Errorf("verify: %w", err), &target))
	assert.Equal(t, "verified", target.From)
}
