// Package idgen issues the random identifiers handed out by the server.
//
// Identifiers are version-4, variant-1 UUIDs rendered as 36 lowercase
// hex characters grouped 8-4-4-4-12.  Uniqueness is probabilistic: no
// registry of issued values is kept.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces identifiers.  Implementations must be safe for
// concurrent use; sessions on different workers call it in parallel.
type Generator interface {
	NewID() (string, error)
}

// Func adapts a plain function to a Generator.
type Func func() (string, error)

// NewID calls f.
func (f Func) NewID() (string, error) { return f() }

// Random draws each identifier from crypto/rand.
type Random struct{}

// NewID returns a fresh random UUID string.
func (Random) NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate identifier: %w", err)
	}
	return u.String(), nil
}

// EnableRandPool makes every subsequent Random.NewID draw from a shared
// buffer of entropy refilled 16 identifiers at a time, trading one
// larger read for many small ones.  It affects the whole process and
// must be called before the generator is shared between goroutines.
func EnableRandPool() { uuid.EnableRandPool() }

// DisableRandPool reverts [EnableRandPool].
func DisableRandPool() { uuid.DisableRandPool() }
