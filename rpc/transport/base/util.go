package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// MaxFrameSize bounds the payload of a single frame
const MaxFrameSize = 64 * 1024 * 1024

// WriteFrame writes a frame with the format:
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", len(data), MaxFrameSize)
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	// header and payload go out in one writev on sockets
	b := net.Buffers{header, data}
	_, err := b.WriteTo(w)
	return err
}

// ReadFrame reads a frame using the provided buffer.
// If the buffer is too small, it will allocate a new temporary buffer for the data.
func ReadFrame(r io.Reader, buf []byte) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	contentLength := binary.BigEndian.Uint32(header[:])
	if contentLength == 0 {
		return []byte{}, nil
	}
	if contentLength > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", contentLength, MaxFrameSize)
	}

	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	if _, err := io.ReadFull(r, buf[:contentLength]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return buf[:contentLength], nil
}
