/*
errors.go - Centralized error types for the revenue engine

ERROR CATEGORIES:
  1. Configuration errors - No active tier, unknown product
  2. Lookup errors - Unknown client, invoice or association
  3. Validation errors - Bad amounts, periods, status transitions
  4. Transaction errors - A write inside a multi-statement transaction failed

PROPAGATION:
  Write-path operations return these errors unchanged or wrapped.
  Read-path operations log them and return empty collections.

SEE ALSO:
  - engine.go: Decides which errors surface
  - api/handlers.go: Maps errors to HTTP status codes
*/
package revenue

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoTierConfigured is returned when commission calculation finds no
	// active tier. It is never silently defaulted.
	ErrNoTierConfigured = errors.New("no active tier configured")

	// ErrClientNotFound is returned when a recording references an unknown
	// client. It is raised before any write.
	ErrClientNotFound = errors.New("client not found")

	// ErrTransactionFailed marks a failure inside a multi-statement transaction.
	ErrTransactionFailed = errors.New("transaction failed")

	ErrProductNotFound     = errors.New("product not found")
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrAssociationNotFound = errors.New("no active association")

	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidPeriod           = errors.New("invalid period")
	ErrInvalidLine             = errors.New("invalid revenue line")
	ErrInvalidStatusTransition = errors.New("invalid invoice status transition")
	ErrInvalidInput            = errors.New("invalid input")

	// ErrDuplicate is returned by stores when a record ID or unique key
	// already exists.
	ErrDuplicate = errors.New("duplicate record")

	// ErrLineMismatch is returned when a record of one line references a
	// client or product configured for another line.
	ErrLineMismatch = errors.New("revenue line mismatch")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransactionError wraps the error that aborted a transaction. It matches
// both ErrTransactionFailed and the underlying error.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: transaction rolled back: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() []error {
	return []error{ErrTransactionFailed, e.Err}
}

// AmountError reports a decimal value that could not be used.
type AmountError struct {
	Field string
	Value string
	Err   error
}

func (e *AmountError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid amount for %s: %q", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid amount: %q", e.Value)
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// StatusTransitionError details a rejected invoice status change.
type StatusTransitionError struct {
	InvoiceID InvoiceID
	From      InvoiceStatus
	To        InvoiceStatus
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("invoice %s: cannot move from %s to %s", e.InvoiceID, e.From, e.To)
}

func (e *StatusTransitionError) Unwrap() error { return ErrInvalidStatusTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrAssociationNotFound)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidLine) ||
		errors.Is(err, ErrLineMismatch) ||
		errors.Is(err, ErrInvalidInput)
}

// IsConflict returns true if the request conflicts with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidStatusTransition) ||
		errors.Is(err, ErrNoTierConfigured) ||
		errors.Is(err, ErrDuplicate)
}
