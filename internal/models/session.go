package models

import "time"

type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "ACTIVE"
	SessionStatusTerminated SessionStatus = "TERMINATED"
)

// Session is one row per (user, device) pair. Logging in again from the same
// device reactivates the existing row instead of inserting a duplicate.
type Session struct {
	ID         string
	UserID     string
	DeviceName string
	UserAgent  string
	IPAddress  string
	Status     SessionStatus
	CreatedAt  time.Time
	LastSeenAt time.Time
	RevokedAt  *time.Time
}
