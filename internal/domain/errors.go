package domain

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrNoValidDates       = errors.New("no valid dates")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrStateTransition    = errors.New("invalid state transition")
	ErrPersistence        = errors.New("persistence failure")
	ErrVersionConflict    = errors.New("version conflict")
	ErrLedgerMismatch     = errors.New("ledger does not reconcile")
	ErrDuplicateReference = errors.New("duplicate ledger reference")
	ErrLocationMismatch   = errors.New("reported location too far from appointment")
)
