package expression

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// CacheKey returns a stable 64-bit hash of the canonical form of e, as 16 hex
// digits. Structurally equal trees share a key.
func CacheKey(e Expression) (string, error) {
	s, err := Format(e)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(s)), nil
}
