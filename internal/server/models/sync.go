package models

// RecordStatus is the result of recording an entry.
type RecordStatus string

const (
	RecordAccepted  RecordStatus = "accepted"
	RecordDuplicate RecordStatus = "duplicate"
)

// SyncOutcome is the per-entry result of reconciliation.
type SyncOutcome string

const (
	OutcomeSynced    SyncOutcome = "synced"
	OutcomeDuplicate SyncOutcome = "duplicate-noop"
	OutcomeError     SyncOutcome = "error"
)

// SyncResult reports what happened to one uploaded entry.
type SyncResult struct {
	EntryID string
	Outcome SyncOutcome
	Detail  string
}

// String renders the result as "synced", "duplicate-noop" or "error:<detail>".
func (r SyncResult) String() string {
	if r.Outcome == OutcomeError {
		return string(OutcomeError) + ":" + r.Detail
	}
	return string(r.Outcome)
}
