// Package id generates opaque identifiers for principals, tenants, and
// revocation stamps.
package id

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random 26-character lowercase base32 identifier.
//
// The underlying bytes follow the UUIDv4 layout so identifiers remain
// convertible to standard UUID form if an external system ever needs one.
func NewID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80
	return strings.ToLower(encoding.EncodeToString(raw[:])), nil
}

// NewStamp returns a fresh revocation stamp.
//
// Stamps are ordinary opaque identifiers; only equality against the stored
// value matters. A separate constructor keeps call sites honest about which
// kind of value they mint.
func NewStamp() (string, error) {
	return NewID()
}
