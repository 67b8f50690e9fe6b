package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError(ErrCodeValidation, "query text is required")
	assert.Equal(t, "[VALIDATION_ERROR] query text is required", err.Error())

	cause := errors.New("connection refused")
	wrapped := NewDomainErrorWithCause(ErrCodeInternalError, "database unreachable", cause)
	assert.Equal(t, "[INTERNAL_ERROR] database unreachable: connection refused", wrapped.Error())
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDomainErrorWithCause(ErrCodeInternalError, "database unreachable", cause)
	assert.ErrorIs(t, err, cause)

	assert.Nil(t, NewDomainError(ErrCodeNotFound, "gone").Unwrap())
}

func TestSentinelErrorsMatchThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("loading session: %w", ErrSessionNotFound)
	assert.ErrorIs(t, wrapped, ErrSessionNotFound)

	var domainErr *DomainError
	require.True(t, errors.As(wrapped, &domainErr))
	assert.Equal(t, ErrCodeNotFound, domainErr.Code)
}

func TestSentinelErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *DomainError
		code string
	}{
		{"EmptyQuery", ErrEmptyQuery, ErrCodeValidation},
		{"MissingRequiredField", ErrMissingRequiredField, ErrCodeValidation},
		{"TenantNotFound", ErrTenantNotFound, ErrCodeNotFound},
		{"DocumentNotFound", ErrDocumentNotFound, ErrCodeNotFound},
		{"SessionNotFound", ErrSessionNotFound, ErrCodeNotFound},
		{"TenantAlreadyExists", ErrTenantAlreadyExists, ErrCodeAlreadyExists},
		{"TenantMismatch", ErrTenantMismatch, ErrCodeTenantIsolation},
		{"RetrievalUnavailable", ErrRetrievalUnavailable, ErrCodeRetrievalUnavailable},
		{"GenerationFailed", ErrGenerationFailed, ErrCodeGenerationFailed},
		{"SessionTerminal", ErrSessionTerminal, ErrCodeInvalidOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}
