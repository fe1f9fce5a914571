package models

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/qrpass/internal/common"
)

// SyncState is the reconciliation state of a ledger entry.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncError   SyncState = "error"
)

// ScanEntry is one verification attempt in the canonical ledger.
// DeviceTime is unix milliseconds as reported by the verifying device.
type ScanEntry struct {
	ID               string
	SubjectID        string
	SubjectName      string
	VerifierID       string
	VerifierName     string
	TokenPayload     string
	DeviceTime       int64
	ServerTime       *time.Time
	Valid            bool
	ValidatedOffline bool
	Reason           string
	SyncState        SyncState
	SyncError        string
	ClientIP         string
	UserAgent        string
	Location         string
	CreatedAt        time.Time
}

// ScanKey is the replay-guard key of an entry.
type ScanKey struct {
	SubjectID    string
	TokenPayload string
	DeviceTime   int64
}

func (e *ScanEntry) Key() ScanKey {
	return ScanKey{SubjectID: e.SubjectID, TokenPayload: e.TokenPayload, DeviceTime: e.DeviceTime}
}

func (k ScanKey) String() string {
	return fmt.Sprintf("%s|%d|%s", k.SubjectID, k.DeviceTime, k.TokenPayload)
}

// Validate enforces the ledger schema. Errors wrap common.ErrorValidation.
func (e *ScanEntry) Validate() error {
	if e.SubjectID == "" {
		return fmt.Errorf("%w: subject id is required", common.ErrorValidation)
	}
	if e.VerifierID == "" {
		return fmt.Errorf("%w: verifier id is required", common.ErrorValidation)
	}
	if e.TokenPayload == "" {
		return fmt.Errorf("%w: token payload is required", common.ErrorValidation)
	}
	if e.DeviceTime <= 0 {
		return fmt.Errorf("%w: device time is required", common.ErrorValidation)
	}

	limits := []struct {
		name  string
		value string
		max   int
	}{
		{"subject id", e.SubjectID, 100},
		{"subject name", e.SubjectName, 100},
		{"verifier id", e.VerifierID, 100},
		{"verifier name", e.VerifierName, 100},
		{"token payload", e.TokenPayload, 500},
		{"reason", e.Reason, 255},
		{"sync error", e.SyncError, 1000},
		{"client ip", e.ClientIP, 45},
		{"user agent", e.UserAgent, 500},
	}
	for _, l := range limits {
		if utf8.RuneCountInString(l.value) > l.max {
			return fmt.Errorf("%w: %s longer than %d", common.ErrorValidation, l.name, l.max)
		}
	}

	if e.Location != "" {
		if !common.ValidLocation(e.Location) {
			return fmt.Errorf("%w: unknown location %q", common.ErrorValidation, e.Location)
		}
	}

	return nil
}

// CheckSkew rejects live entries whose device clock is more than
// common.MaxDeviceSkew away from now.
func (e *ScanEntry) CheckSkew(now time.Time) error {
	diff := now.Sub(time.UnixMilli(e.DeviceTime))
	if diff < 0 {
		diff = -diff
	}
	if diff > common.MaxDeviceSkew {
		return fmt.Errorf("%w: %s", common.ErrClockSkew, diff.Round(time.Second))
	}
	return nil
}
