// Package entropy provides the random sources used by bonus yields and
// location search. Seeded sources make a run reproducible; the crypto source
// is used when no seed is configured.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
)

// cryptoSource is a math/rand Source64 backed by crypto/rand.
type cryptoSource struct{}

func (cryptoSource) Seed(int64) {}

func (cryptoSource) Int63() int64 {
	return int64(cryptoUint64() >> 1)
}

func (cryptoSource) Uint64() uint64 {
	return cryptoUint64()
}

func cryptoUint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		slog.Error("crypto/rand read failed", "error", err)
		return 0
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// New returns a random source. A zero seed selects crypto/rand; any other
// seed gives a reproducible sequence.
func New(seed int64) *mrand.Rand {
	if seed == 0 {
		return mrand.New(cryptoSource{})
	}
	return mrand.New(mrand.NewSource(seed))
}

// Derive returns a seeded source offset from a base seed, so independent
// subsystems (placement, bonus yields) draw independent sequences.
// A zero base still selects crypto/rand.
func Derive(seed, offset int64) *mrand.Rand {
	if seed == 0 {
		return New(0)
	}
	return New(seed + offset)
}

// Float returns a float in [0, 1) from crypto/rand.
func Float() float64 {
	// Use only 53 bits for a uniform float64 in [0, 1).
	return float64(cryptoUint64()>>11) / float64(1<<53)
}
