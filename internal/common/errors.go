// Package common defines shared constants and sentinel errors used across
// the server and scanner components. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")
	ErrorRateLimited  = errors.New("rate limited")

	// Auth errors (invalid or malformed device credential).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Presence token outcomes. The validator reports these as values, the
	// errors exist so that transport and storage layers can wrap them.
	ErrMalformedPayload = errors.New("malformed payload")
	ErrOutOfWindow      = errors.New("out of window")
	ErrNoActiveSecret   = errors.New("no active secret")
	ErrBadAuthenticator = errors.New("bad authenticator")

	// Ledger and reconciliation errors.
	ErrDuplicateScan = errors.New("duplicate scan")
	ErrSyncConflict  = errors.New("sync conflict")
	ErrBatchTooLarge = errors.New("batch too large")
	ErrLedgerFull    = errors.New("ledger full")
	ErrClockSkew     = errors.New("device clock skew too large")
)
