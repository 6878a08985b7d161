package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: ErrNotFound, want: http.StatusNotFound},
		{name: "unauthorized", err: ErrUnauthorized, want: http.StatusUnauthorized},
		{name: "invalid credentials", err: ErrInvalidCredentials, want: http.StatusUnauthorized},
		{name: "forbidden", err: ErrForbidden, want: http.StatusForbidden},
		{name: "validation", err: ErrValidation, want: http.StatusBadRequest},
		{name: "insufficient funds", err: ErrInsufficientFunds, want: http.StatusUnprocessableEntity},
		{name: "rate limit", err: ErrRateLimitExceeded, want: http.StatusTooManyRequests},
		{name: "unknown error defaults to 500", err: errors.New("boom"), want: http.StatusInternalServerError},
		{name: "wrapped sentinel", err: fmt.Errorf("context: %w", ErrNotFound), want: http.StatusNotFound},
		{name: "app error with explicit code", err: New(http.StatusConflict, "conflict", nil), want: http.StatusConflict},
		{name: "validation helper", err: Validation("bad input"), want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, MapErrorToStatus(tt.err))
		})
	}
}

func TestValidationHelper(t *testing.T) {
	err := Validation("username is too short")
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, "username is too short", err.Error())
}
