// archive/key.go

package archive

import (
	"encoding/hex"
	"strings"
)

// KeySize is the length of an archive key in bytes.
const KeySize = 32

// ParseKey extracts a canonical lowercase hex key from address. It accepts
// bare keys and dat:// URLs.
func ParseKey(address string) (string, bool) {
	s := strings.TrimSpace(address)
	s = strings.TrimPrefix(s, "dat://")
	s = strings.TrimRight(s, "/")
	if i := strings.IndexAny(s, "+/"); i >= 0 {
		s = s[:i]
	}
	if len(s) != hex.EncodedLen(KeySize) {
		return "", false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", false
	}
	return strings.ToLower(s), true
}
