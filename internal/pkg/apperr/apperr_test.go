package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfAndRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"validation", Validation("op", "bad %s", "input"), KindValidation, false},
		{"permanent", Permanent("op", errors.New("x")), KindPermanent, false},
		{"transient", Transient("op", errors.New("x")), KindTransient, true},
		{"not found", NotFound("op", "gone"), KindNotFound, true},
		{"conflict", Conflict("op", "dup"), KindConflict, true},
		{"plain", errors.New("x"), KindUnknown, true},
		{"wrapped", fmt.Errorf("ctx: %w", Permanent("op", errors.New("x"))), KindPermanent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsKind(nil, KindUnknown))
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "inventory.Reserve: nothing to reserve", Validation("inventory.Reserve", "nothing to reserve").Error())
	assert.Equal(t, "db: timeout", Transient("db", errors.New("timeout")).Error())
	assert.Equal(t, "missing", NotFound("", "missing").Error())
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Conflict("op", "dup"))

	assert.True(t, errors.Is(err, &Error{Kind: KindConflict}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound}))
}

func TestWithContext(t *testing.T) {
	inner := Validation("stock", "insufficient stock for product 7")
	err := WithContext("Service \"Roof repair\"", inner)

	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "Service \"Roof repair\"")
	assert.Contains(t, err.Error(), "insufficient stock for product 7")
	assert.ErrorIs(t, err, inner)

	plain := errors.New("io")
	wrapped := WithContext("label", plain)
	assert.Equal(t, "label: io", wrapped.Error())
	assert.ErrorIs(t, wrapped, plain)

	assert.NoError(t, WithContext("label", nil))
}
