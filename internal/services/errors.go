package services

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable classification of a domain failure. The HTTP
// layer maps kinds to status codes; the messages are the fixed user-facing
// texts shown by the clients.
type Kind string

const (
	KindNotFound              Kind = "NOT_FOUND"
	KindAlreadyExists         Kind = "ALREADY_EXISTS"
	KindReaderSuspended       Kind = "READER_SUSPENDED"
	KindMaterialUnavailable   Kind = "MATERIAL_UNAVAILABLE"
	KindLoanLimitExceeded     Kind = "LOAN_LIMIT_EXCEEDED"
	KindAlreadyReturned       Kind = "ALREADY_RETURNED"
	KindInvalidRequest        Kind = "INVALID_REQUEST"
	KindRepositoryUnavailable Kind = "REPOSITORY_UNAVAILABLE"
)

// DomainError is a typed failure returned by the loan service. Never panics,
// never raw repository errors: every failure a caller sees is one of these.
type DomainError struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is lets errors.Is match two DomainErrors by kind and message, so sentinel
// comparisons work even for wrapped instances.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && e.Message == other.Message
}

var (
	ErrReaderNotFound = &DomainError{Kind: KindNotFound, Message: "El lector no existe"}

	ErrMaterialNotFound = &DomainError{Kind: KindNotFound, Message: "El material no existe"}

	ErrLoanNotFound = &DomainError{Kind: KindNotFound, Message: "El préstamo no existe"}

	// ErrDuplicateLoanRequest is returned when a create request is resubmitted
	// with a request key that has already been used.
	ErrDuplicateLoanRequest = &DomainError{Kind: KindAlreadyExists, Message: "Préstamo repetido"}

	// ErrDuplicateReader is returned when a registration reuses an email. The
	// email is the reader's business key: same email, same person.
	ErrDuplicateReader = &DomainError{Kind: KindAlreadyExists, Message: "El lector ya está registrado"}

	ErrReaderSuspended = &DomainError{Kind: KindReaderSuspended, Message: "El lector está suspendido"}

	ErrMaterialUnavailable = &DomainError{Kind: KindMaterialUnavailable, Message: "Material no disponible para préstamo"}

	ErrLoanLimitExceeded = &DomainError{Kind: KindLoanLimitExceeded, Message: "Se ha alcanzado el límite de materiales por préstamo"}

	ErrLoanAlreadyReturned = &DomainError{Kind: KindAlreadyReturned, Message: "El préstamo ya fue devuelto"}

	ErrInvalidRequest = &DomainError{Kind: KindInvalidRequest, Message: "Solicitud inválida"}
)

// repositoryUnavailable wraps a transient storage failure. The service never
// retries these: retrying a non-idempotent create could double-reserve
// materials, so retry policy belongs to the caller.
func repositoryUnavailable(err error) error {
	return &DomainError{
		Kind:    KindRepositoryUnavailable,
		Message: "El repositorio no está disponible",
		cause:   err,
	}
}

// invalidRequest returns an InvalidRequest failure with a specific message.
func invalidRequest(message string) error {
	return &DomainError{Kind: KindInvalidRequest, Message: message}
}

// KindOf extracts the failure kind from an error returned by the service.
// Returns the empty Kind for nil or foreign errors.
func KindOf(err error) Kind {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}
