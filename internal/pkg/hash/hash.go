// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
)

// SHA256String computes the SHA256 hash of a string and returns it as a hex string.
func SHA256String(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Seed derives a deterministic 64-bit seed from a base seed and a list of labels.
// The same inputs always give the same seed; different labels give unrelated seeds.
func Seed(base uint64, labels ...string) uint64 {
	data := strconv.FormatUint(base, 10) + "\x00" + strings.Join(labels, "\x00")
	h := sha256.Sum256([]byte(data))
	return binary.BigEndian.Uint64(h[:8])
}
