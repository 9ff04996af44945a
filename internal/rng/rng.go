// Package rng provides deterministic, seedable random sources.
package rng

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	mrand "math/rand"
)

// SubsystemBuyers is the subsystem used by batch simulation runs.
const SubsystemBuyers = "buyers"

// SubsystemRound returns the subsystem name for a session's round draw.
func SubsystemRound(round int) string {
	return fmt.Sprintf("round_%d", round)
}

// Source is the randomness the catalog and simulation draw from.
// *math/rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

// Partitioned hands out isolated generators per named subsystem, all derived
// from one master seed as seed XOR fnv1a64(name).
//
// Not safe for concurrent use.
type Partitioned struct {
	seed       int64
	subsystems map[string]*mrand.Rand
}

// NewPartitioned creates a Partitioned source for seed.
func NewPartitioned(seed int64) *Partitioned {
	return &Partitioned{
		seed:       seed,
		subsystems: make(map[string]*mrand.Rand),
	}
}

// For returns the generator for name. Repeated calls return the same instance.
func (p *Partitioned) For(name string) *mrand.Rand {
	if r, ok := p.subsystems[name]; ok {
		return r
	}
	r := mrand.New(mrand.NewSource(p.seed ^ fnv1a64(name)))
	p.subsystems[name] = r
	return r
}

// Seed returns the master seed.
func (p *Partitioned) Seed() int64 {
	return p.seed
}

// NewSeed draws a fresh master seed from the operating system.
func NewSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("generate seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1), nil
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
