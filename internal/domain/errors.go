package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeAlreadyExists        = "ALREADY_EXISTS"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeInvalidOperation     = "INVALID_OPERATION"
	ErrCodeTenantIsolation      = "TENANT_ISOLATION"
	ErrCodeRetrievalUnavailable = "RETRIEVAL_UNAVAILABLE"
	ErrCodeGenerationFailed     = "GENERATION_FAILED"
	ErrCodeAnswerNotGrounded    = "ANSWER_NOT_GROUNDED"
)

// Validation errors
var (
	ErrInvalidDocumentStatus = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrInvalidStep           = NewDomainError(ErrCodeValidation, "invalid workflow step")
	ErrEmptyQuery            = NewDomainError(ErrCodeValidation, "query text is required")
	ErrMissingRequiredField  = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrTenantNotFound   = NewDomainError(ErrCodeNotFound, "tenant not found")
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrSessionNotFound  = NewDomainError(ErrCodeNotFound, "session not found")
)

// Already exists errors
var (
	ErrTenantAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "tenant already exists")
)

// Isolation errors. A tenant mismatch on session resume is returned rather
// than panicked: the caller supplied a bad session key, not a miswired code
// path. A missing tenant filter inside the repository is the panic case.
var (
	ErrTenantMismatch = NewDomainError(ErrCodeTenantIsolation, "session belongs to a different tenant")
)

// Pipeline errors
var (
	ErrRetrievalUnavailable = NewDomainError(ErrCodeRetrievalUnavailable, "search backends are unavailable")
	ErrGenerationFailed     = NewDomainError(ErrCodeGenerationFailed, "answer generation failed")
	ErrSessionTerminal      = NewDomainError(ErrCodeInvalidOperation, "session already reached a terminal step")
)
