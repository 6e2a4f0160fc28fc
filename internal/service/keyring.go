package service

import (
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSigningSecret is returned when a keyring is built without a current
// secret.
var ErrNoSigningSecret = errors.New("signing secret must not be empty")

// Keyring holds the HMAC signing secrets sealed in memory. The current
// secret signs new tokens; verification accepts the current secret and then
// each previous secret, which allows rotating the secret without logging
// everybody out.
type Keyring struct {
	current  *memguard.Enclave
	previous []*memguard.Enclave
}

// NewKeyring seals the given secrets. Empty previous secrets are skipped.
func NewKeyring(current string, previous ...string) (*Keyring, error) {
	if current == "" {
		return nil, ErrNoSigningSecret
	}
	k := &Keyring{current: memguard.NewEnclave([]byte(current))}
	for _, p := range previous {
		if p == "" || p == current {
			continue
		}
		k.previous = append(k.previous, memguard.NewEnclave([]byte(p)))
	}
	return k, nil
}

// Size returns the number of secrets accepted for verification.
func (k *Keyring) Size() int {
	return 1 + len(k.previous)
}

// withSigningSecret opens the current secret for the duration of fn.
func (k *Keyring) withSigningSecret(fn func(secret []byte) error) error {
	buf, err := k.current.Open()
	if err != nil {
		return fmt.Errorf("open signing secret: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// withVerificationKeys opens every secret, current first, for the duration
// of fn.
func (k *Keyring) withVerificationKeys(fn func(set jwt.VerificationKeySet) error) error {
	enclaves := append([]*memguard.Enclave{k.current}, k.previous...)
	set := jwt.VerificationKeySet{Keys: make([]jwt.VerificationKey, 0, len(enclaves))}
	for _, e := range enclaves {
		buf, err := e.Open()
		if err != nil {
			return fmt.Errorf("open verification secret: %w", err)
		}
		defer buf.Destroy()
		set.Keys = append(set.Keys, buf.Bytes())
	}
	return fn(set)
}
