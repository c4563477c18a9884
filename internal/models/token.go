package models

import "time"

// RefreshToken is a persisted refresh session. Only a bcrypt hash of the
// secret handed to the client is stored, plus an unsalted fingerprint used
// to narrow the candidate set on lookup.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	TokenHash string     `db:"token_hash" json:"-"`
	LookupKey string     `db:"lookup_key" json:"-"`
	UserID    int64      `db:"user_id" json:"user_id"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	Revoked   bool       `db:"revoked" json:"revoked"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IPAddress string     `db:"ip_address" json:"ip_address"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// ExpiredAt reports whether the record's expiry is at or before now.
func (t *RefreshToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ClientMeta carries request metadata recorded alongside sessions and audit entries.
type ClientMeta struct {
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}
