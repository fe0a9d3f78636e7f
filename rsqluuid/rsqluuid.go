// Package rsqluuid generates the 36-character RFC-4122 v4 identifiers used
// throughout as reservation and command correlation tokens (spec.md §4.7).
// google/uuid already guarantees the variant/version nibbles and draws from
// a cryptographically seeded source, so the "fast" and "mutex-guarded"
// entry points here differ only in whether they share a package-level lock
// with other cross-thread callers, not in the underlying algorithm.
package rsqluuid

import (
	"sync"

	"github.com/google/uuid"
)

var mu sync.Mutex

// New draws a fresh v4 UUID string. Safe to call concurrently: the
// underlying generator is already safe for concurrent use, so this is the
// fast, lock-free entry point for in-thread callers.
func New() string {
	return uuid.NewString()
}

// NewSafe draws a fresh v4 UUID string while holding a package-level
// mutex, for callers that want to serialise generation alongside other
// guarded state (cross-thread callers coordinating through the same lock
// the source used around its Mersenne-Twister generator).
func NewSafe() string {
	mu.Lock()
	defer mu.Unlock()
	return uuid.NewString()
}
