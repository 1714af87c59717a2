// Package errs centralizes the error kinds shared by the ledger, sale and
// metrics services.
//
// Three families exist:
//   - validation: bad caller input, no side effects, recoverable locally
//   - consistency: the write would break a ledger invariant and was not applied
//   - transient: the store is out of capacity; callers decide whether to resubmit
//
// Anything else is an unexpected failure and travels up unchanged.
package errs

import (
	"errors"
	"fmt"
)

// Code is the stable identifier reported to API clients.
type Code string

const (
	CodeInvalidQuantity      Code = "invalid-quantity"
	CodeInvalidPrice         Code = "invalid-price"
	CodeInsufficientStock    Code = "insufficient-stock"
	CodeInvalidDateTime      Code = "invalid-datetime"
	CodeInvalidKind          Code = "invalid-kind"
	CodeInvalidKey           Code = "invalid-key"
	CodeNegativeStock        Code = "negative-stock"
	CodeDuplicateSnapshot    Code = "duplicate-snapshot"
	CodeTemporarilyUnavail   Code = "temporarily-unavailable"
	CodeLedgerNotFound       Code = "ledger-not-found"
	CodeConcurrentUpdate     Code = "concurrent-update"
	CodeResetNotConfirmed    Code = "reset-not-confirmed"
	CodeLedgerInconsistent   Code = "ledger-inconsistent"
	CodeDuplicateTransaction Code = "duplicate-transaction"
)

// Validation errors.
var (
	ErrInvalidQuantity   = errors.New(string(CodeInvalidQuantity))
	ErrInvalidPrice      = errors.New(string(CodeInvalidPrice))
	ErrInsufficientStock = errors.New(string(CodeInsufficientStock))
	ErrInvalidDateTime   = errors.New(string(CodeInvalidDateTime))
	ErrInvalidKind       = errors.New(string(CodeInvalidKind))
	ErrInvalidKey        = errors.New(string(CodeInvalidKey))
	ErrResetNotConfirmed = errors.New(string(CodeResetNotConfirmed))
)

// Consistency errors.
var (
	ErrNegativeStock        = errors.New(string(CodeNegativeStock))
	ErrDuplicateSnapshot    = errors.New(string(CodeDuplicateSnapshot))
	ErrLedgerInconsistent   = errors.New(string(CodeLedgerInconsistent))
	ErrDuplicateTransaction = errors.New(string(CodeDuplicateTransaction))
)

var (
	// ErrTemporarilyUnavailable marks capacity or quota exhaustion in the store.
	ErrTemporarilyUnavailable = errors.New(string(CodeTemporarilyUnavail))

	// ErrLedgerNotFound is returned when a farm/category was never provisioned.
	ErrLedgerNotFound = errors.New(string(CodeLedgerNotFound))

	// ErrConcurrentUpdate is returned when the ledger version changed between read and write.
	ErrConcurrentUpdate = errors.New(string(CodeConcurrentUpdate))
)

// InsufficientStockError reports an over-draw attempt.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: available %d, requested %d", CodeInsufficientStock, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// TransientError wraps a store failure classified as capacity/quota related.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %s: %v", CodeTemporarilyUnavail, e.Op, e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{ErrTemporarilyUnavailable, e.Err}
}

// DriftError describes the first place where a stored remaining stock
// disagrees with the fold over the history.
type DriftError struct {
	EventID  string
	Index    int
	Stored   int
	Computed int
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("%s: event %s at %d stores remaining %d, fold gives %d",
		CodeLedgerInconsistent, e.EventID, e.Index, e.Stored, e.Computed)
}

func (e *DriftError) Unwrap() error {
	return ErrLedgerInconsistent
}

var validation = []error{
	ErrInvalidQuantity,
	ErrInvalidPrice,
	ErrInsufficientStock,
	ErrInvalidDateTime,
	ErrInvalidKind,
	ErrInvalidKey,
	ErrResetNotConfirmed,
}

var consistency = []error{
	ErrNegativeStock,
	ErrDuplicateSnapshot,
	ErrLedgerInconsistent,
	ErrDuplicateTransaction,
	ErrConcurrentUpdate,
}

// IsValidation reports whether err is caller input the service refused.
func IsValidation(err error) bool {
	return isAny(err, validation)
}

// IsConsistency reports whether err is a rejected invariant-breaking write.
func IsConsistency(err error) bool {
	return isAny(err, consistency)
}

// IsTransient reports whether err is a temporary store capacity condition.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTemporarilyUnavailable)
}

// IsNotFound reports whether err refers to a missing ledger.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLedgerNotFound)
}

// CodeOf returns the stable code carried by err, or an empty code for
// unexpected failures.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	all := append(append([]error{}, validation...), consistency...)
	all = append(all, ErrTemporarilyUnavailable, ErrLedgerNotFound)
	for _, target := range all {
		if errors.Is(err, target) {
			return Code(target.Error())
		}
	}
	return ""
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
