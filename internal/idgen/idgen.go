// Package idgen provides cryptographically random ID generation for
// payment records, escrow holds, and agreements.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// New generates a UUID-like random ID (32 hex chars with dashes).
// Format: xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
func New() string {
	return fmt.Sprintf("%x-%x-%x-%x-%x",
		randBytes(4), randBytes(2), randBytes(2), randBytes(2), randBytes(6))
}

// WithPrefix generates a random ID with a prefix (e.g. "pay_", "hold_",
// "agr_"). Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	return prefix + hex.EncodeToString(randBytes(12))
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	return hex.EncodeToString(randBytes(numBytes))
}

// UpperHex generates an uppercase random hex string of the given byte
// length. Used for human-facing document numbers (receipts, display IDs).
func UpperHex(numBytes int) string {
	return strings.ToUpper(Hex(numBytes))
}

func randBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return b
}
