package relay

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vk/modgate/internal/statestore"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds a single envelope on the wire.
const MaxFrameSize = 16 << 20

// ErrFrameTooLarge is returned for frames above MaxFrameSize.
var ErrFrameTooLarge = errors.New("relay: frame exceeds maximum size")

// Conn is a framed, bidirectional relay connection. Send is safe for
// concurrent use; Receive must be called from a single goroutine.
type Conn struct {
	r *bufio.Reader

	wmu sync.Mutex
	w   io.Writer
}

// NewConn frames envelopes over r and w.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{r: bufio.NewReader(r), w: w}
}

// Send writes one envelope.
func (c *Conn) Send(env *Envelope) error {
	data, err := msgpack.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", env.Kind, err)
	}
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s envelope: %w", env.Kind, err)
	}
	return nil
}

// Receive reads the next envelope. It returns io.EOF when the peer closed
// the stream between frames.
func (c *Conn) Receive() (*Envelope, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.r, data); err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}

	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}

// Forwarder returns a statestore.Forwarder that sends updates on c.
func (c *Conn) Forwarder() statestore.Forwarder {
	return statestore.ForwarderFunc(func(u statestore.Update) error {
		return c.Send(NewUpdate(u))
	})
}
