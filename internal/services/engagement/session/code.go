package session

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// CodeLength is the number of characters in a session code.
const CodeLength = 6

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Largest multiple of len(codeAlphabet) that fits in a byte; higher bytes are
// rejected so every symbol is equally likely.
const codeRejectAbove = 256 - 256%len(codeAlphabet)

// NewCode returns a random session code drawn from crypto/rand.
func NewCode() (string, error) {
	out := make([]byte, 0, CodeLength)
	var buf [16]byte
	for len(out) < CodeLength {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= codeRejectAbove {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}
	return string(out), nil
}

// NormalizeCode trims and upper-cases a code received from a client.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
