// Package id issues ULID ticket strings. IDs from one generator are
// strictly ascending, so ticket order doubles as creation order in the
// journal and the closing selector.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces ULIDs from a single monotonic entropy source.
// ulid.Monotonic keeps IDs generated within the same millisecond
// lexicographically increasing. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator seeds the entropy PRNG from crypto/rand so IDs are
// unpredictable.
func NewGenerator() *Generator {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewDeterministic returns a generator that emits the same sequence for
// the same seed. The clock is pinned, so ordering comes entirely from
// the monotonic entropy. Intended for reproducible sessions and tests.
func NewDeterministic(seed int64) *Generator {
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Generator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
		now:     func() time.Time { return at },
	}
}

// New returns the next ULID string.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil {
		panic(err)
	}
	return id.String()
}
