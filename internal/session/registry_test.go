package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddRemove(t *testing.T) {
	registry := NewRegistry(discardLogger())

	first, _ := newTestSession(t)
	second, _ := newTestSession(t)
	registry.Add(first)
	registry.Add(second)
	assert.Equal(t, 2, registry.Len())

	assert.True(t, registry.Remove(first.ID()))
	assert.False(t, registry.Remove(first.ID()))
	assert.Equal(t, 1, registry.Len())

	require.NoError(t, first.Close())
	require.NoError(t, registry.CloseAll())
}

func TestRegistryCloseAllClosesEverySession(t *testing.T) {
	registry := NewRegistry(discardLogger())

	var closers []*countingCloser
	for i := 0; i < 3; i++ {
		sess, media := newTestSession(t)
		registry.Add(sess)
		closers = append(closers, media)
	}

	require.NoError(t, registry.CloseAll())
	assert.Equal(t, 0, registry.Len())

	for _, media := range closers {
		assert.Equal(t, 1, media.closed)
	}

	// A second pass over an emptied registry is a no-op.
	require.NoError(t, registry.CloseAll())
	for _, media := range closers {
		assert.Equal(t, 1, media.closed)
	}
}
