package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int
}

// ============================================================================
// WriteObject / ReadObject round trip
// ============================================================================

func TestWriteReadObject(t *testing.T) {
	t.Parallel()

	t.Run("round trips a registered struct", func(t *testing.T) {
		t.Parallel()
		s := NewGobSerializer()
		Register[point](s, 1)

		var buf bytes.Buffer
		require.NoError(t, s.WriteObject(point{X: 1, Y: 2}, &buf))

		v, err := s.ReadObject(&buf)
		require.NoError(t, err)
		assert.Equal(t, point{X: 1, Y: 2}, v)
	})

	t.Run("round trips the pre-registered string type", func(t *testing.T) {
		t.Parallel()
		s := NewGobSerializer()

		var buf bytes.Buffer
		require.NoError(t, s.WriteObject("hello world", &buf))

		v, err := s.ReadObject(&buf)
		require.NoError(t, err)
		assert.Equal(t, "hello world", v)
	})
}

func TestWriteObjectRejectsUnregisteredType(t *testing.T) {
	t.Parallel()

	s := NewGobSerializer()
	var buf bytes.Buffer
	err := s.WriteObject(point{X: 1, Y: 2}, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
	assert.Zero(t, buf.Len())
}

// ============================================================================
// TypeKeyOf
// ============================================================================

func TestTypeKeyOf(t *testing.T) {
	t.Parallel()

	t.Run("resolves a registered type's key", func(t *testing.T) {
		t.Parallel()
		s := NewGobSerializer()
		Register[point](s, 7)

		key, ok := s.TypeKeyOf(point{})
		require.True(t, ok)
		assert.Equal(t, uint16(7), key)
	})

	t.Run("reports false for an unregistered type", func(t *testing.T) {
		t.Parallel()
		s := NewGobSerializer()
		_, ok := s.TypeKeyOf(point{})
		assert.False(t, ok)
	})

	t.Run("resolves the pre-registered string key", func(t *testing.T) {
		t.Parallel()
		s := NewGobSerializer()
		key, ok := s.TypeKeyOf("anything")
		require.True(t, ok)
		assert.Equal(t, StringTypeKey, key)
	})
}

func TestRegisterReplacesPriorEntry(t *testing.T) {
	t.Parallel()

	s := NewGobSerializer()
	Register[point](s, 3)
	Register[string](s, 3)

	key, ok := s.TypeKeyOf(point{})
	assert.False(t, ok, "key 3 should now resolve to string, not point")

	key, ok = s.TypeKeyOf("x")
	require.True(t, ok)
	assert.Equal(t, uint16(3), key)
}
