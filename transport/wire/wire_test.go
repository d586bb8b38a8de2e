package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackshare/clustercomm/transport/errs"
)

// ============================================================================
// WriteFrame / ReadFrame round trip
// ============================================================================

func TestWriteReadFrame(t *testing.T) {
	t.Parallel()

	t.Run("round trips a small payload", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, []byte("hello")))

		r := NewReader(&buf)
		body, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), body)
	})

	t.Run("round trips a max-size payload", func(t *testing.T) {
		t.Parallel()
		payload := bytes.Repeat([]byte{0xAB}, MaxFrameSize)
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, payload))

		r := NewReader(&buf)
		body, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, payload, body)
	})

	t.Run("reads consecutive frames in order", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, []byte("first")))
		require.NoError(t, WriteFrame(&buf, []byte("second")))

		r := NewReader(&buf)
		first, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, []byte("first"), first)

		second, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), second)
	})
}

// ============================================================================
// WriteFrame bounds
// ============================================================================

func TestWriteFrameBounds(t *testing.T) {
	t.Parallel()

	t.Run("rejects an empty payload", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		err := WriteFrame(&buf, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.Protocol)
		assert.Zero(t, buf.Len())
	})

	t.Run("rejects a payload over MaxFrameSize", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		err := WriteFrame(&buf, make([]byte, MaxFrameSize+1))
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.Protocol)
		assert.Zero(t, buf.Len())
	})
}

// ============================================================================
// ReadFrame error paths
// ============================================================================

func TestReadFrameErrors(t *testing.T) {
	t.Parallel()

	t.Run("propagates a clean EOF before any bytes", func(t *testing.T) {
		t.Parallel()
		r := NewReader(bytes.NewReader(nil))
		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("propagates a truncated header as unexpected EOF", func(t *testing.T) {
		t.Parallel()
		r := NewReader(bytes.NewReader([]byte{0x00}))
		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("propagates a truncated body as unexpected EOF", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, []byte("hello")))
		truncated := buf.Bytes()[:len(buf.Bytes())-1]

		r := NewReader(bytes.NewReader(truncated))
		_, err := r.ReadFrame()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("rejects a zero-length frame", func(t *testing.T) {
		t.Parallel()
		r := NewReader(bytes.NewReader([]byte{0x00, 0x00}))
		_, err := r.ReadFrame()
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.Protocol)
	})

	t.Run("rejects a frame length over MaxFrameSize", func(t *testing.T) {
		t.Parallel()
		r := NewReader(bytes.NewReader([]byte{0xFF, 0xFF}))
		_, err := r.ReadFrame()
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.Protocol)
	})

	t.Run("a write error surfaces as a TransportError", func(t *testing.T) {
		t.Parallel()
		err := WriteFrame(alwaysErrWriter{}, []byte("x"))
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.Transport)
	})
}

type alwaysErrWriter struct{}

func (alwaysErrWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}
