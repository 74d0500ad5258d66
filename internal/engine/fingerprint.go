package engine

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// fingerprint returns the hex BLAKE3 digest of parts joined by NUL bytes.
func fingerprint(parts ...string) string {
	h := blake3.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// JobID derives a stable identifier for a sync job from its source root
// and target roots, used to key cached copy tasks.
func JobID(source string, targets ...string) string {
	return fingerprint(append([]string{source}, targets...)...)[:16]
}
