package license

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

const (
	keyCharset    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyGroupLen   = 4
	keyGroupCount = 4

	// maxKeyAttempts bounds uniqueness retries per key, both for the
	// pre-insert probe and for insert-time collisions.
	maxKeyAttempts = 10
)

// KeyPattern matches the XXXX-XXXX-XXXX-XXXX key format.
var KeyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// KeyProber answers read-only uniqueness probes against the store.
type KeyProber interface {
	LicenseKeyExists(ctx context.Context, key string) (bool, error)
}

// Generator produces unique license key strings. It never reserves or
// persists anything; the unique index on the key column is the final guard.
type Generator struct {
	store KeyProber
}

// NewGenerator creates a key generator backed by the given store.
func NewGenerator(store KeyProber) *Generator {
	return &Generator{store: store}
}

// GenerateUniqueKey returns a candidate key that is not present in the store
// and not in reserved. Bulk issuance passes the keys generated earlier in the
// same batch as reserved, since those are not yet visible to the store probe.
// It fails with ErrKeyGenExhausted after maxKeyAttempts candidates.
func (g *Generator) GenerateUniqueKey(ctx context.Context, reserved map[string]struct{}) (string, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := randomKey()
		if err != nil {
			return "", fmt.Errorf("failed to generate key candidate: %w", err)
		}

		if _, taken := reserved[key]; taken {
			continue
		}

		exists, err := g.store.LicenseKeyExists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("failed to probe key uniqueness: %w", err)
		}
		if !exists {
			return key, nil
		}
	}

	return "", ErrKeyGenExhausted
}

// randomKey builds one XXXX-XXXX-XXXX-XXXX candidate from crypto/rand.
func randomKey() (string, error) {
	buf := make([]byte, keyGroupLen*keyGroupCount)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(keyGroupLen*keyGroupCount + keyGroupCount - 1)
	for i, rb := range buf {
		if i > 0 && i%keyGroupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(keyCharset[int(rb)%len(keyCharset)])
	}
	return b.String(), nil
}
