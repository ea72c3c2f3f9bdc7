package doc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// revDomain separates revision hashes from any other SHA-256 use.
const revDomain = "roll2d6/rev/v1"

// NextRev computes the revision token that follows prev for body.
// The token is "<generation>-<hash>" where generation is one more than
// prev's and hash covers prev and the canonical body (without _rev).
func NextRev(prev string, body Document) (string, error) {
	gen := 0
	if prev != "" {
		g, _, err := ParseRev(prev)
		if err != nil {
			return "", err
		}
		gen = g
	}

	canon, err := MarshalCanonical(body.Body())
	if err != nil {
		return "", fmt.Errorf("next rev: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(revDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(prev))
	h.Write([]byte{0x00})
	h.Write(canon)
	sum := h.Sum(nil)

	return strconv.Itoa(gen+1) + "-" + hex.EncodeToString(sum[:16]), nil
}

// ParseRev splits a revision token into generation and hash.
func ParseRev(rev string) (int, string, error) {
	genStr, hash, ok := strings.Cut(rev, "-")
	if !ok || hash == "" {
		return 0, "", fmt.Errorf("malformed revision %q", rev)
	}
	gen, err := strconv.Atoi(genStr)
	if err != nil || gen < 1 {
		return 0, "", fmt.Errorf("malformed revision %q", rev)
	}
	return gen, hash, nil
}

// CompareRev orders two revision tokens: higher generation wins, equal
// generations fall back to the hash. Malformed tokens sort first.
func CompareRev(a, b string) int {
	ga, ha, errA := ParseRev(a)
	gb, hb, errB := ParseRev(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	case ga != gb:
		if ga < gb {
			return -1
		}
		return 1
	default:
		return strings.Compare(ha, hb)
	}
}
