// internal/protocol/conn.go
package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arcade/internal/errs"
)

// MaxMessageSize bounds a single structured message. A longer line means the
// peer is not speaking the protocol and the stream cannot be resynchronized.
const MaxMessageSize = 1 << 20

// ErrConnDead is returned by writes on a connection that already failed.
var ErrConnDead = errors.New("connection is dead")

// ErrMessageTooLarge is returned when a line exceeds MaxMessageSize.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// Conn is one live lobby stream. Reads are done only by the owning worker;
// writes may come from any goroutine (replies, room broadcasts) and are
// serialized so each message hits the wire whole.
type Conn struct {
	ID string

	nc net.Conn
	r  *bufio.Reader

	wmu  sync.Mutex
	dead atomic.Bool

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps nc. A zero readTimeout waits for the peer indefinitely; a
// zero writeTimeout never expires writes.
func NewConn(nc net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		ID:           uuid.NewString(),
		nc:           nc,
		r:            bufio.NewReader(nc),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.nc.RemoteAddr().String()
}

// Dead reports whether a write has failed or the connection was closed.
func (c *Conn) Dead() bool {
	return c.dead.Load()
}

// Close marks the connection dead and closes the stream. Safe to call more
// than once.
func (c *Conn) Close() error {
	if c.dead.Swap(true) {
		return nil
	}
	return c.nc.Close()
}

// ReadLine blocks until a full newline-terminated record arrives and returns
// it without the terminator.
func (c *Conn) ReadLine() ([]byte, error) {
	if c.readTimeout > 0 {
		if err := c.nc.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, err
		}
	}

	var line []byte
	for {
		chunk, err := c.r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > MaxMessageSize {
			return nil, ErrMessageTooLarge
		}
		switch {
		case err == nil:
			line = line[:len(line)-1]
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}

// ReadRequest reads the next non-empty record and decodes it. A malformed
// record returns a KindProtocol error and leaves the stream usable; any other
// error means the stream is finished.
func (c *Conn) ReadRequest() (Request, error) {
	for {
		line, err := c.ReadLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		return DecodeRequest(line)
	}
}

// ReadJSON reads the next record into v. Used by clients to read replies and
// pushes.
func (c *Conn) ReadJSON(v any) error {
	line, err := c.ReadLine()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(line, v); err != nil {
		return errs.Protocol("malformed message", err)
	}
	return nil
}

// Send writes v as one structured message. A failed write marks the
// connection dead and closes it so the owning reader unblocks and tears down.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.writeLocked(func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// SendWithFile writes v followed immediately by a bulk transfer of size bytes
// from r. The write lock is held across both so no push can land between the
// reply and its payload.
func (c *Conn) SendWithFile(v any, r io.Reader, size int64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.writeLocked(func(w io.Writer) error {
		if _, err := w.Write(data); err != nil {
			return err
		}
		return WriteFrame(w, r, size)
	})
}

// RecvFile reads one bulk transfer into w through the connection's read
// buffer and returns the number of bytes received.
func (c *Conn) RecvFile(w io.Writer) (int64, error) {
	return ReadFrame(c.r, w)
}

func (c *Conn) writeLocked(write func(io.Writer) error) error {
	if c.dead.Load() {
		return ErrConnDead
	}
	if c.writeTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			c.kill()
			return err
		}
	}
	if err := write(c.nc); err != nil {
		c.kill()
		return err
	}
	return nil
}

func (c *Conn) kill() {
	if !c.dead.Swap(true) {
		_ = c.nc.Close()
	}
}
