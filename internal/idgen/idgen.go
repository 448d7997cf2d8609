// Package idgen generates short hash-based record IDs.
//
// IDs are sha256 hashes of record content rendered in base36 for density,
// prefixed by record kind: inb-x7k2q9 for inbox items, iss-m3f8aa for
// issues. A nonce input lets callers retry on the (rare) collision.
package idgen

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Record kind prefixes.
const (
	InboxPrefix = "inb"
	IssuePrefix = "iss"
)

// idLength is the number of base36 characters after the prefix.
const idLength = 6

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// encodeBase36 converts a byte slice to a base36 string of the given length,
// zero-padded on the left and truncated to the least significant digits.
func encodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var b strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		b.WriteByte(chars[i])
	}

	s := b.String()
	if len(s) < length {
		s = strings.Repeat("0", length-len(s)) + s
	}
	if len(s) > length {
		s = s[len(s)-length:]
	}
	return s
}

// New derives an ID from the record's identifying parts. The same parts with
// the same nonce always yield the same ID; bump the nonce to resolve a
// collision.
func New(prefix string, at time.Time, nonce int, parts ...string) string {
	content := fmt.Sprintf("%s|%d|%d", strings.Join(parts, "|"), at.UnixNano(), nonce)
	hash := sha256.Sum256([]byte(content))
	// 4 bytes = 32 bits ≈ 6.18 base36 chars
	return fmt.Sprintf("%s-%s", prefix, encodeBase36(hash[:4], idLength))
}

// HasPrefix reports whether id carries the given record-kind prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"-")
}
