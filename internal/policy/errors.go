package policy

import (
	"errors"
	"fmt"

	"github.com/roach88/noderepo/internal/ir"
)

// RuntimeError represents a registration or dispatch failure raised by this
// package. Behaviour errors are never wrapped in a RuntimeError.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Policy is the policy involved, if any.
	Policy Name

	// QName is the class or association type involved, if any.
	QName ir.QName
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownQName indicates a binding to a class or association type
	// the dictionary does not define.
	ErrCodeUnknownQName RuntimeErrorCode = "UNKNOWN_QNAME"

	// ErrCodeWrongPolicyKind indicates an unknown policy, or a class scoped
	// policy bound as association scoped (or the reverse).
	ErrCodeWrongPolicyKind RuntimeErrorCode = "WRONG_POLICY_KIND"

	// ErrCodeInvalidBehaviour indicates a nil behaviour or handler.
	ErrCodeInvalidBehaviour RuntimeErrorCode = "INVALID_BEHAVIOUR"

	// ErrCodeRegistrySealed indicates a binding after Seal.
	ErrCodeRegistrySealed RuntimeErrorCode = "REGISTRY_SEALED"

	// ErrCodeNoTransaction indicates a transaction-scoped feature was used
	// outside a transaction.
	ErrCodeNoTransaction RuntimeErrorCode = "NO_TRANSACTION"

	// ErrCodeDepthExceeded indicates nested dispatch exceeded the limit.
	ErrCodeDepthExceeded RuntimeErrorCode = "DEPTH_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.Policy != "" && !e.QName.IsZero():
		return fmt.Sprintf("%s: %s (policy=%s, qname=%s)", e.Code, e.Message, e.Policy, e.QName)
	case e.Policy != "":
		return fmt.Sprintf("%s: %s (policy=%s)", e.Code, e.Message, e.Policy)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownQNameError returns true if a binding named an undefined QName.
func IsUnknownQNameError(err error) bool {
	return hasCode(err, ErrCodeUnknownQName)
}

// IsWrongPolicyKindError returns true if a binding used the wrong registry.
func IsWrongPolicyKindError(err error) bool {
	return hasCode(err, ErrCodeWrongPolicyKind)
}

// IsRegistrySealedError returns true if a binding arrived after Seal.
func IsRegistrySealedError(err error) bool {
	return hasCode(err, ErrCodeRegistrySealed)
}

// IsNoTransactionError returns true if a transaction was required.
func IsNoTransactionError(err error) bool {
	return hasCode(err, ErrCodeNoTransaction)
}

// IsDepthError returns true if nested dispatch went too deep.
// Matches both RuntimeError with ErrCodeDepthExceeded and DispatchDepthError.
func IsDepthError(err error) bool {
	if hasCode(err, ErrCodeDepthExceeded) {
		return true
	}
	var de *DispatchDepthError
	return errors.As(err, &de)
}

func noTransaction(feature string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNoTransaction,
		Message: feature + " requires a transaction",
	}
}
