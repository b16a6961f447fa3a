package crypto

import (
	"encoding/hex"
	"io"

	"golang.org/x/crypto/blake2b"
)

// HashBytes returns the hex-encoded BLAKE2b-512 digest of data, the
// content address every chunk and manifest block is keyed by (spec §4.3,
// §5.2).
func HashBytes(data []byte) string {
	sum := blake2b.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// HashReader streams r through a BLAKE2b-512 hasher, for hashing staged
// chunks without holding them fully in memory.
func HashReader(r io.Reader) (string, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
