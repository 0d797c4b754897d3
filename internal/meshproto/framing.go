package meshproto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// Meshtastic stream framing constants: a 4-byte header (two magic bytes plus
// a big-endian uint16 length) followed by a serialized FromRadio/ToRadio
// protobuf payload.
const (
	Magic1        byte = 0x94
	Magic2        byte = 0xc3
	HeaderSize         = 4
	MaxPacketSize      = 512
)

// StreamFramer reads and writes length-prefixed Meshtastic frames over any
// io.Reader/io.Writer (TCP socket or serial port alike).
type StreamFramer struct {
	r *bufio.Reader
	w io.Writer
}

// NewStreamFramer wraps rw for framed reads and writes.
func NewStreamFramer(r io.Reader, w io.Writer) *StreamFramer {
	return &StreamFramer{r: bufio.NewReaderSize(r, 4096), w: w}
}

// ReadFrame blocks until a complete frame arrives, returning its payload
// (the bytes between the header and the next frame). It resynchronizes on
// the magic bytes if the stream is misaligned, which can happen after a
// device reboot mid-frame.
func (f *StreamFramer) ReadFrame() ([]byte, error) {
	if err := f.syncToMagic(); err != nil {
		return nil, err
	}

	header := make([]byte, HeaderSize)
	header[0] = Magic1
	header[1] = Magic2
	if _, err := io.ReadFull(f.r, header[2:]); err != nil {
		return nil, fmt.Errorf("meshproto: read frame length: %w", err)
	}

	length := binary.BigEndian.Uint16(header[2:4])
	if length == 0 || int(length) > MaxPacketSize {
		return nil, fmt.Errorf("meshproto: frame length %d out of bounds", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		return nil, fmt.Errorf("meshproto: read frame payload: %w", err)
	}
	return payload, nil
}

// syncToMagic advances the reader until it is positioned just past a
// Magic1,Magic2 pair, discarding any stray bytes before it.
func (f *StreamFramer) syncToMagic() error {
	for {
		b1, err := f.r.ReadByte()
		if err != nil {
			return fmt.Errorf("meshproto: sync to magic: %w", err)
		}
		if b1 != Magic1 {
			continue
		}
		b2, err := f.r.ReadByte()
		if err != nil {
			return fmt.Errorf("meshproto: sync to magic: %w", err)
		}
		if b2 == Magic2 {
			return nil
		}
		if b2 == Magic1 {
			// The second byte could itself start the header; re-examine it.
			_ = f.r.UnreadByte()
		}
	}
}

// WriteFrame writes payload with the standard 4-byte header.
func (f *StreamFramer) WriteFrame(payload []byte) error {
	if len(payload) > MaxPacketSize {
		return fmt.Errorf("meshproto: payload of %d bytes exceeds max frame size", len(payload))
	}
	header := make([]byte, HeaderSize)
	header[0] = Magic1
	header[1] = Magic2
	binary.BigEndian.PutUint16(header[2:], uint16(len(payload)))
	if _, err := f.w.Write(append(header, payload...)); err != nil {
		return fmt.Errorf("meshproto: write frame: %w", err)
	}
	return nil
}

// IsTemporary reports whether err is a transient read timeout that a
// reconnect loop should tolerate rather than treat as a dead connection.
func IsTemporary(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
