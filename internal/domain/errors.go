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

// Is matches sentinel domain errors by code and message, so a copy carrying
// a cause still satisfies errors.Is against the sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// WithCause returns a copy of the error carrying the underlying cause.
func (e *DomainError) WithCause(err error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
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
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeSequenceConflict    = "SEQUENCE_CONFLICT"
	ErrCodeChainIntegrity      = "CHAIN_INTEGRITY_VIOLATION"
	ErrCodeImmutability        = "IMMUTABILITY_VIOLATION"
)

// Validation errors
var (
	ErrInvalidSensitivityTier = NewDomainError(ErrCodeValidation, "invalid sensitivity tier")
	ErrInvalidVisibility      = NewDomainError(ErrCodeValidation, "invalid visibility scope")
	ErrInvalidActorType       = NewDomainError(ErrCodeValidation, "invalid actor type")
	ErrInvalidOutcome         = NewDomainError(ErrCodeValidation, "invalid outcome")
	ErrInvalidSeverity        = NewDomainError(ErrCodeValidation, "invalid severity")
	ErrGenesisSequence        = NewDomainError(ErrCodeValidation, "first record for a tenant must have sequence 1 and empty previous hash")
)

// Not found errors
var (
	ErrTenantNotFound     = NewDomainError(ErrCodeNotFound, "tenant not found")
	ErrDocumentNotFound   = NewDomainError(ErrCodeNotFound, "document not found")
	ErrCredentialNotFound = NewDomainError(ErrCodeNotFound, "agent credential not found")
	ErrIndexJobNotFound   = NewDomainError(ErrCodeNotFound, "index job not found")
)

// Authorization errors
var (
	ErrCredentialRevoked = NewDomainError(ErrCodeUnauthorized, "agent credential has been revoked")
	ErrInvalidCredential = NewDomainError(ErrCodeUnauthorized, "invalid agent credential")
)

// Ledger errors
var (
	ErrSequenceConflict   = NewDomainError(ErrCodeSequenceConflict, "audit sequence already claimed by a concurrent append")
	ErrAncestryMismatch   = NewDomainError(ErrCodeChainIntegrity, "previous hash does not match the tenant chain tail")
	ErrRecordHashMismatch = NewDomainError(ErrCodeChainIntegrity, "record hash does not match recomputed value")
	ErrRecordImmutable    = NewDomainError(ErrCodeImmutability, "committed audit records cannot be updated or deleted")
)

// Retrieval errors
var (
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeUpstreamUnavailable, "embedding backend unavailable, retrieval failed closed")
	ErrRankingUnavailable   = NewDomainError(ErrCodeUpstreamUnavailable, "ranking backend unavailable, retrieval failed closed")
)
