package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"lukechampine.com/blake3"
)

const (
	viewingKeyPrefix = "api_key_"
	viewingKeyBytes  = 32
)

// ViewingKeys derives viewing keys from a seed plus fresh randomness and hashes them with
// blake3 for storage.
type ViewingKeys struct {
	random io.Reader
}

// NewViewingKeys builds a ViewingKeys reading randomness from crypto/rand.
func NewViewingKeys() *ViewingKeys {
	return &ViewingKeys{random: rand.Reader}
}

// Generate returns a new viewing key bound to seed.
func (v *ViewingKeys) Generate(seed string) (string, error) {
	nonce := make([]byte, viewingKeyBytes)
	if _, err := io.ReadFull(v.random, nonce); err != nil {
		return "", fmt.Errorf("viewing key randomness: %w", err)
	}
	hasher := blake3.New(viewingKeyBytes, nil)
	_, _ = hasher.Write(nonce)
	_, _ = hasher.Write([]byte(seed))
	return viewingKeyPrefix + base64.RawURLEncoding.EncodeToString(hasher.Sum(nil)), nil
}

// Hash returns the hex blake3 digest persisted in place of the key.
func (v *ViewingKeys) Hash(key string) string {
	digest := blake3.Sum256([]byte(key))
	return hex.EncodeToString(digest[:])
}

// Matches compares a stored hash with a presented key in constant time. An empty stored
// hash never matches.
func (v *ViewingKeys) Matches(hash, key string) bool {
	computed := v.Hash(key)
	if hash == "" {
		subtle.ConstantTimeCompare([]byte(computed), []byte(computed))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(computed)) == 1
}
