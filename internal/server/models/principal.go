// Package models defines the server-side domain records.
package models

import "time"

// Principal is an enrolled identity as known to the principal registry.
type Principal struct {
	ID          string
	DisplayName string
	Role        string
	Active      bool
	CreatedAt   time.Time
}
