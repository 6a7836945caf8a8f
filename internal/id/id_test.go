package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorAscending(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	prev := g.New()
	for i := 0; i < 200; i++ {
		next := g.New()
		require.Greater(t, next, prev)
		prev = next
	}
}

func TestDeterministicRepeatsPerSeed(t *testing.T) {
	t.Parallel()

	a := NewDeterministic(7)
	b := NewDeterministic(7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.New(), b.New())
	}
}

func TestDeterministicStillAscending(t *testing.T) {
	t.Parallel()

	g := NewDeterministic(1)
	prev := g.New()
	for i := 0; i < 50; i++ {
		next := g.New()
		require.Greater(t, next, prev)
		prev = next
	}
}
