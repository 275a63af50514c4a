package netcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryGetOrCreateWithinInitialCapacity(t *testing.T) {
	r := newRegistry()
	require.Equal(t, initialRegistryCapacity, len(r.slots))

	calls := 0
	newConn := func() *Conn {
		calls++
		return &Conn{fd: 5}
	}

	c1 := r.getOrCreate(5, newConn)
	c2 := r.getOrCreate(5, newConn)
	require.Same(t, c1, c2)
	require.Equal(t, 1, calls, "a second getOrCreate on the same fd must not allocate a new record")
}

func TestRegistryGrowsToFitFD(t *testing.T) {
	r := &registry{slots: make([]*Conn, 4)}

	c := r.getOrCreate(10, func() *Conn { return &Conn{fd: 10} })
	require.NotNil(t, c)
	require.Greater(t, len(r.slots), 10)
	// growth doubles: 4 -> 8 -> 16
	require.Equal(t, 16, len(r.slots))
}

func TestRegistryPreservesExistingSlotsOnGrowth(t *testing.T) {
	r := &registry{slots: make([]*Conn, 4)}
	first := r.getOrCreate(2, func() *Conn { return &Conn{fd: 2} })

	second := r.getOrCreate(10, func() *Conn { return &Conn{fd: 10} })
	require.NotNil(t, second)

	got, ok := r.get(2)
	require.True(t, ok)
	require.Same(t, first, got)
}

func TestRegistryShutdownClearsAllSlots(t *testing.T) {
	r := &registry{slots: make([]*Conn, 4)}
	r.getOrCreate(1, func() *Conn { return &Conn{fd: 1} })
	r.getOrCreate(3, func() *Conn { return &Conn{fd: 3} })

	var closed []int
	r.shutdown(func(c *Conn) { closed = append(closed, c.fd) })

	require.ElementsMatch(t, []int{1, 3}, closed)
	for _, slot := range r.slots {
		require.Nil(t, slot)
	}
}

func TestRegistryGetMissingFD(t *testing.T) {
	r := newRegistry()
	_, ok := r.get(999999)
	require.False(t, ok)
}
