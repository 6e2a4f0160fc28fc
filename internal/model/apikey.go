package model

import "time"

// APIKey is a long-lived credential owned by a user. The raw key is never
// stored; only its SHA-256 hash (the lookup key) and a short prefix for
// identification are persisted.
type APIKey struct {
	ID        string     `json:"id" db:"id"`
	KeyHash   string     `json:"-" db:"key_hash"`            // SHA-256 hash, never expose
	KeyPrefix string     `json:"key_prefix" db:"key_prefix"` // first chars for identification
	Label     string     `json:"label" db:"label"`
	UserID    string     `json:"user_id" db:"user_id"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
}

// ExpiredAt reports whether the key is expired at t. A key whose expiry equals
// t is already expired.
func (k *APIKey) ExpiredAt(t time.Time) bool {
	return !t.Before(k.ExpiresAt)
}
