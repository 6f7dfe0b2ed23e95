package model

import "time"

// Identity is the mailbox credential handed to a protocol session. The
// core reads Address and AccessToken and never persists it.
type Identity struct {
	Address      string
	AccessToken  string
	RefreshToken string

	// Expiry is zero when unknown.
	Expiry time.Time
}

// Expired reports whether the token has a known expiry at or before now.
func (id Identity) Expired(now time.Time) bool {
	if id.Expiry.IsZero() {
		return false
	}
	return !now.Before(id.Expiry)
}

// User is the local account record that owns stored messages.
type User struct {
	ID        string     `json:"id" db:"id"`
	Email     string     `json:"email" db:"email"`
	Name      string     `json:"name" db:"name"`
	LastSync  *time.Time `json:"lastSync" db:"last_sync"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}
