// Package identity derives privacy-preserving identifiers from raw account ids.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/okian/listenproof/internal/domain/model"
)

// DigestLength is the length of a HashedIdentity in hex characters.
const DigestLength = sha256.Size * 2

// maxRawLength bounds accepted raw identifiers; provider ids are far shorter.
const maxRawLength = 256

// Hash returns the SHA-256 hex digest of the raw account id. Surrounding
// whitespace is ignored so that " alice" and "alice" map to the same identity.
func Hash(raw string) (model.HashedIdentity, error) {
	id := strings.TrimSpace(raw)
	switch {
	case id == "":
		return "", fmt.Errorf("%w: empty account id", ErrInvalidIdentity)
	case len(id) > maxRawLength:
		return "", fmt.Errorf("%w: account id longer than %d bytes", ErrInvalidIdentity, maxRawLength)
	}
	for _, r := range id {
		if r == unicode.ReplacementChar || unicode.IsControl(r) {
			return "", fmt.Errorf("%w: account id contains invalid characters", ErrInvalidIdentity)
		}
	}

	sum := sha256.Sum256([]byte(id))
	return model.HashedIdentity(hex.EncodeToString(sum[:])), nil
}
