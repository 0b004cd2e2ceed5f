// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package sec

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// # Opaque Tokens

// GenerateSecureToken returns a URL-safe random string built from byteLength
// bytes of crypto/rand entropy.
//
// # Security
//
// 32 bytes yields 256 bits of entropy — the minimum for any token that acts
// as a bearer credential (refresh tokens, reset tokens).
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to generate secure token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// HashToken returns the hex-encoded SHA-256 digest of an opaque token.
//
// Only the digest is ever persisted: a database leak must not expose usable
// session secrets. SHA-256 (not bcrypt) is sufficient here because the input
// is already high-entropy and lookups must be indexable.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
