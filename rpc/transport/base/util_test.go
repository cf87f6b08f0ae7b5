package base

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("OEHASHEQUIV 1.1"),
		bytes.Repeat([]byte{0xab}, 100_000),
	}

	var buf bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, WriteFrame(&buf, p))
	}

	scratch := make([]byte, 16)
	for i, p := range payloads {
		got, err := ReadFrame(&buf, scratch)
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, p, got, "frame %d", i)
	}

	_, err := ReadFrame(&buf, scratch)
	assert.Equal(t, io.EOF, err)
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello world")))
	truncated := buf.Bytes()[:buf.Len()-3]

	_, err := ReadFrame(bytes.NewReader(truncated), nil)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadFrameTooLarge(t *testing.T) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, MaxFrameSize+1)

	_, err := ReadFrame(bytes.NewReader(header), nil)
	assert.Error(t, err)
}
