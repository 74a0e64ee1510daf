package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := ErrStaleVersion
	assert.Equal(t, "stale_version: Proposal base version is older than the current entity version", err.Error())

	wrapped := err.WithInternal(errors.New("version 3 < 5"))
	assert.Contains(t, wrapped.Error(), "version 3 < 5")
	assert.Equal(t, http.StatusConflict, wrapped.HTTPStatus)
}

func TestWithHelpersDoNotMutate(t *testing.T) {
	base := ErrValidationFailure

	custom := base.WithMessage("severity out of range").
		WithDetails(map[string]any{"field": "severity"})

	assert.Equal(t, "Proposal failed validation", base.Message)
	assert.Nil(t, base.Details)
	assert.Equal(t, "severity out of range", custom.Message)
	assert.Equal(t, "severity", custom.Details["field"])
	assert.Equal(t, base.Code, custom.Code)
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := ErrStoreUnavailable.WithInternal(inner)

	assert.True(t, errors.Is(err, inner))

	var appErr *Error
	assert.True(t, errors.As(fmt.Errorf("commit: %w", err), &appErr))
	assert.Equal(t, "store_unavailable", appErr.Code)
}

func TestIsInfrastructure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"store unavailable", ErrStoreUnavailable, true},
		{"database", ErrDatabase.WithInternal(errors.New("timeout")), true},
		{"wrapped store unavailable", fmt.Errorf("commit: %w", ErrStoreUnavailable), true},
		{"validation failure", ErrValidationFailure, false},
		{"permission denied", ErrPermissionDenied, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInfrastructure(tt.err))
		})
	}
}
