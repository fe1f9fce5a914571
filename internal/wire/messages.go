package wire

type PingRequest struct{}

type PingResponse struct {
	Status     string `json:"status"`
	WindowMs   int64  `json:"window_ms"`
	ServerTime int64  `json:"server_time"`
}

// ValidateRequest asks the server to validate and record one scanned
// payload. The verifier is taken from the device credential.
type ValidateRequest struct {
	Payload      string `json:"payload"`
	VerifierName string `json:"verifier_name,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Ledger status of a validated scan.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
)

type ValidateResponse struct {
	Valid       bool   `json:"valid"`
	Accepted    bool   `json:"accepted"`
	Reason      string `json:"reason,omitempty"`
	Status      string `json:"status,omitempty"`
	EntryID     string `json:"entry_id,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
	SubjectName string `json:"subject_name,omitempty"`
	WindowID    int64  `json:"window_id"`
	DeviceTime  int64  `json:"device_time"`
}

// ScanEntry is a ledger entry collected offline. Times are unix
// milliseconds.
type ScanEntry struct {
	ID           string `json:"id"`
	SubjectID    string `json:"subject_id"`
	SubjectName  string `json:"subject_name,omitempty"`
	VerifierID   string `json:"verifier_id,omitempty"`
	VerifierName string `json:"verifier_name,omitempty"`
	TokenPayload string `json:"token_payload"`
	DeviceTime   int64  `json:"device_time"`
	Valid        bool   `json:"valid"`
	Reason       string `json:"reason,omitempty"`
	ClientIP     string `json:"client_ip,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	Location     string `json:"location,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

type SyncLedgerRequest struct {
	Entries []*ScanEntry `json:"entries"`
}

// SyncResult carries one of "synced", "duplicate-noop" or "error".
type SyncResult struct {
	EntryID string `json:"entry_id"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

type SyncLedgerResponse struct {
	Results []SyncResult `json:"results"`
}

type SecretCacheRequest struct{}

// SecretCacheResponse points at a sealed snapshot of active secrets.
type SecretCacheResponse struct {
	URL       string `json:"url"`
	Key       []byte `json:"key"`
	Nonce     []byte `json:"nonce"`
	Count     int    `json:"count"`
	ExpiresAt int64  `json:"expires_at"`
}

type RotateSecretRequest struct {
	PrincipalID string `json:"principal_id"`
}

type RotateSecretResponse struct {
	PrincipalID string `json:"principal_id"`
	SecretID    string `json:"secret_id"`
	ExpiresAt   int64  `json:"expires_at"`
}

type RevokeSecretRequest struct {
	PrincipalID string `json:"principal_id"`
	Suspend     bool   `json:"suspend,omitempty"`
}

type RevokeSecretResponse struct {
	PrincipalID string `json:"principal_id"`
}
