// Package nativemsg implements browser native-messaging framing: each message
// is a 32-bit length in native byte order followed by that many bytes of
// UTF-8 JSON.
package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// MaxInbound caps frames read from the host, matching the browser's
	// host-to-browser limit.
	MaxInbound = 1 << 20
	// MaxOutbound caps frames written to the host, matching the browser's
	// browser-to-host limit.
	MaxOutbound = 64 << 20
)

// ErrMessageTooLarge reports a frame that exceeds the configured cap.
var ErrMessageTooLarge = errors.New("native message too large")

// Decoder reads length-prefixed JSON frames.
type Decoder struct {
	r   io.Reader
	max uint32
}

// NewDecoder returns a decoder capped at MaxInbound.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, max: MaxInbound}
}

// ReadFrame returns the raw JSON payload of the next frame. io.EOF is returned
// only when the stream ends cleanly between frames.
func (d *Decoder) ReadFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read frame header: %w", err)
		}
		return nil, err
	}
	size := binary.NativeEndian.Uint32(header[:])
	if size > d.max {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return payload, nil
}

// Decode reads the next frame into v.
func (d *Decoder) Decode(v any) error {
	payload, err := d.ReadFrame()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode native message: %w", err)
	}
	return nil
}

// Encoder writes length-prefixed JSON frames. It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	w   io.Writer
	max int
}

// NewEncoder returns an encoder capped at MaxOutbound.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w, max: MaxOutbound}
}

// Encode marshals v and writes it as a single frame.
func (e *Encoder) Encode(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode native message: %w", err)
	}
	if len(payload) > e.max {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	frame := make([]byte, 4+len(payload))
	binary.NativeEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(frame); err != nil {
		return fmt.Errorf("write native message: %w", err)
	}
	return nil
}
