package models

import "time"

// Secret is one principal's signing key. Key holds plaintext bytes only in
// memory; repositories persist it encrypted as Ciphertext/Nonce.
type Secret struct {
	ID          string
	PrincipalID string
	Key         []byte `json:"-"`
	Ciphertext  []byte `json:"-"`
	Nonce       []byte `json:"-"`
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Revoked     bool
	RotatedAt   *time.Time
	CreatedBy   string
}

// ActiveAt reports whether s is usable at t.
func (s *Secret) ActiveAt(t time.Time) bool {
	return !s.Revoked && t.Before(s.ExpiresAt)
}

// CachedSecret is the projection shipped to verifying devices for offline
// validation.
type CachedSecret struct {
	PrincipalID string    `json:"principal_id"`
	DisplayName string    `json:"display_name"`
	Key         []byte    `json:"key"`
	ExpiresAt   time.Time `json:"expires_at"`
}
