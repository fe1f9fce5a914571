package models

import "time"

// CachedSecret is a principal secret received in a secret cache snapshot.
// The JSON form matches the snapshot published by the server.
type CachedSecret struct {
	PrincipalID string    `json:"principal_id"`
	DisplayName string    `json:"display_name"`
	Key         []byte    `json:"key"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UsableAt reports whether the secret may validate tokens at t.
func (s *CachedSecret) UsableAt(t time.Time) bool {
	return len(s.Key) > 0 && t.Before(s.ExpiresAt)
}
