// Package models defines the scanner's local records.
package models

import "time"

type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncError   SyncState = "error"
)

// ScanEntry is one offline verification attempt. DeviceTime is unix
// milliseconds taken from the token.
type ScanEntry struct {
	ID           string
	SubjectID    string
	SubjectName  string
	VerifierID   string
	VerifierName string
	TokenPayload string
	DeviceTime   int64
	Valid        bool
	Reason       string
	Location     string
	SyncState    SyncState
	SyncError    string
	CreatedAt    time.Time
}

// LedgerStats summarizes the local ledger.
type LedgerStats struct {
	Pending int64
	Synced  int64
	Errored int64
}
