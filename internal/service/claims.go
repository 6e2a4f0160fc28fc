package service

import "time"

// Claims is the verified identity carried by a credential. Times are unix
// seconds.
type Claims struct {
	UID       string `json:"uid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Expiry returns ExpiresAt as a time.
func (c Claims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0)
}
