package provider

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Checksum returns the uppercase hexadecimal SHA-256 digest of data.
//
// Uploads hash the exact slice they transmit, so the digest always matches
// the bytes on the wire.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
