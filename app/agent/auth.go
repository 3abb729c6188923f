package agent

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// SessionAuth issues and validates terminal session cookies. Only bcrypt
// hashes are kept in memory; the plaintext cookie lives on the terminal.
type SessionAuth struct {
	mu     sync.Mutex
	hashes [][]byte
}

// NewSessionAuth creates an empty session registry.
func NewSessionAuth() *SessionAuth {
	return &SessionAuth{}
}

// Issue mints a new session cookie and remembers its hash.
func (a *SessionAuth) Issue() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate session cookie: %w", err)
	}
	cookie := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(cookie), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash session cookie: %w", err)
	}

	a.mu.Lock()
	a.hashes = append(a.hashes, hash)
	a.mu.Unlock()
	return cookie, nil
}

// Validate reports whether the cookie matches a previously issued session.
func (a *SessionAuth) Validate(cookie string) bool {
	if cookie == "" {
		return false
	}

	a.mu.Lock()
	hashes := make([][]byte, len(a.hashes))
	copy(hashes, a.hashes)
	a.mu.Unlock()

	for _, hash := range hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(cookie)) == nil {
			return true
		}
	}
	return false
}

// Revoke forgets every issued session.
func (a *SessionAuth) Revoke() {
	a.mu.Lock()
	a.hashes = nil
	a.mu.Unlock()
}
