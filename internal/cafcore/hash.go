// Package cafcore implements the caf content-addressed snapshot engine: an
// object store, reference store, tree builder, diff engine, staging index,
// checkout engine, and three-way merge engine, bound together by a
// repository facade.
package cafcore

import (
	"crypto/sha1" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"
	"fmt"
)

// HashLength is the number of hex characters in a Hash. The object hash
// algorithm itself is treated as an implementation detail external to the
// core; this package happens to use SHA-1 the way the teacher's object
// store does, but nothing above the Object Store depends on that choice.
const HashLength = 40

// HashCharset is the accepted alphabet for a Hash's characters.
const HashCharset = "0123456789abcdef"

// Hash is a validated, fixed-width lowercase hex content digest.
type Hash string

// NewHash validates s as a HashLength-character lowercase hex string.
func NewHash(s string) (Hash, error) {
	if len(s) != HashLength {
		return "", fmt.Errorf("%w: wrong length %d", ErrInvalidArgument, len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return "", fmt.Errorf("%w: non-hex character in hash %q", ErrInvalidArgument, s)
		}
	}
	return Hash(s), nil
}

// IsValidHash reports whether s is a syntactically valid hash without
// constructing a Hash value.
func IsValidHash(s string) bool {
	_, err := NewHash(s)
	return err == nil
}

// Short returns a truncated, human-friendly rendering of the hash.
func (h Hash) Short() string {
	if len(h) <= 7 {
		return string(h)
	}
	return string(h)[:7]
}

// hashBytes computes the content hash of a canonical byte encoding.
func hashBytes(b []byte) Hash {
	sum := sha1.Sum(b) //nolint:gosec // content addressing, not a security boundary
	return Hash(hex.EncodeToString(sum[:]))
}
