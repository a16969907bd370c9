package tinyhttputil

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
)

// NewPipeConns returns new bi-directional connection pipe.
func NewPipeConns() *PipeConns {
	ch1 := make(chan *bytebufferpool.ByteBuffer, 4)
	ch2 := make(chan *bytebufferpool.ByteBuffer, 4)

	pc := &PipeConns{
		stopCh: make(chan struct{}),
	}
	pc.c1.init(pc, ch1, ch2)
	pc.c2.init(pc, ch2, ch1)
	return pc
}

// PipeConns provides bi-directional connection pipe,
// which use in-process memory as a transport.
//
// PipeConns must be created by calling NewPipeConns.
//
// Unlike net.Pipe, writes are buffered, so a Write doesn't wait for
// a concurrent Read. Read and write deadlines are supported.
type PipeConns struct {
	c1         pipeConn
	c2         pipeConn
	stopCh     chan struct{}
	stopChLock sync.Mutex
}

// Conn1 returns the first end of bi-directional pipe.
//
// Data written to Conn1 may be read from Conn2.
func (pc *PipeConns) Conn1() net.Conn {
	return &pc.c1
}

// Conn2 returns the second end of bi-directional pipe.
//
// Data written to Conn2 may be read from Conn1.
func (pc *PipeConns) Conn2() net.Conn {
	return &pc.c2
}

// Close closes both ends of the pipe.
//
// Data already written may still be read.
func (pc *PipeConns) Close() error {
	pc.stopChLock.Lock()
	select {
	case <-pc.stopCh:
	default:
		close(pc.stopCh)
	}
	pc.stopChLock.Unlock()
	return nil
}

// ErrConnectionClosed is returned when writing to a closed pipe.
var ErrConnectionClosed = errors.New("connection closed")

var errWouldBlock = errors.New("would block")

// ErrTimeout is returned from Read and Write after the deadline passes.
var ErrTimeout error = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

type pipeConn struct {
	b  *bytebufferpool.ByteBuffer
	bb []byte

	rCh chan *bytebufferpool.ByteBuffer
	wCh chan *bytebufferpool.ByteBuffer
	pc  *PipeConns

	readDeadline  deadline
	writeDeadline deadline
}

func (c *pipeConn) init(pc *PipeConns, rCh, wCh chan *bytebufferpool.ByteBuffer) {
	c.pc = pc
	c.rCh = rCh
	c.wCh = wCh
	c.readDeadline.cancel = make(chan struct{})
	c.writeDeadline.cancel = make(chan struct{})
}

func (c *pipeConn) Write(p []byte) (int, error) {
	select {
	case <-c.pc.stopCh:
		return 0, ErrConnectionClosed
	default:
	}
	expired := c.writeDeadline.wait()
	if isClosedChan(expired) {
		return 0, ErrTimeout
	}

	b := bytebufferpool.Get()
	b.B = append(b.B[:0], p...)

	select {
	case c.wCh <- b:
	default:
		select {
		case c.wCh <- b:
		case <-c.pc.stopCh:
			bytebufferpool.Put(b)
			return 0, ErrConnectionClosed
		case <-expired:
			bytebufferpool.Put(b)
			return 0, ErrTimeout
		}
	}
	return len(p), nil
}

// Read blocks for the first chunk only and then drains whatever is
// already buffered.
func (c *pipeConn) Read(p []byte) (int, error) {
	mayBlock := true
	nn := 0
	for len(p) > 0 {
		n, err := c.read(p, mayBlock)
		nn += n
		if err != nil {
			if !mayBlock && err == errWouldBlock {
				err = nil
			}
			return nn, err
		}
		p = p[n:]
		mayBlock = false
	}
	return nn, nil
}

func (c *pipeConn) read(p []byte, mayBlock bool) (int, error) {
	if len(c.bb) == 0 {
		if err := c.readNextByteBuffer(mayBlock); err != nil {
			return 0, err
		}
	}
	n := copy(p, c.bb)
	c.bb = c.bb[n:]
	return n, nil
}

func (c *pipeConn) readNextByteBuffer(mayBlock bool) error {
	if c.b != nil {
		bytebufferpool.Put(c.b)
		c.b = nil
	}
	expired := c.readDeadline.wait()
	if mayBlock && isClosedChan(expired) {
		return ErrTimeout
	}

	select {
	case c.b = <-c.rCh:
	default:
		if !mayBlock {
			return errWouldBlock
		}
		select {
		case c.b = <-c.rCh:
		case <-c.pc.stopCh:
			// Drain what was written before the pipe was closed.
			select {
			case c.b = <-c.rCh:
			default:
				return io.EOF
			}
		case <-expired:
			return ErrTimeout
		}
	}
	c.bb = c.b.B
	return nil
}

func (c *pipeConn) Close() error {
	return c.pc.Close()
}

func (c *pipeConn) LocalAddr() net.Addr {
	return pipeAddr(0)
}

func (c *pipeConn) RemoteAddr() net.Addr {
	return pipeAddr(0)
}

func (c *pipeConn) SetDeadline(t time.Time) error {
	c.readDeadline.set(t)
	c.writeDeadline.set(t)
	return nil
}

func (c *pipeConn) SetReadDeadline(t time.Time) error {
	c.readDeadline.set(t)
	return nil
}

func (c *pipeConn) SetWriteDeadline(t time.Time) error {
	c.writeDeadline.set(t)
	return nil
}

type pipeAddr int

func (pipeAddr) Network() string {
	return "pipe"
}

func (pipeAddr) String() string {
	return "pipe"
}

// deadline closes cancel once the deadline passes. Pending operations
// waiting on cancel are woken up when the deadline moves to the past.
type deadline struct {
	mu     sync.Mutex
	timer  *time.Timer
	cancel chan struct{}
}

func (d *deadline) set(t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && !d.timer.Stop() {
		// The timer fired, wait for it to close cancel.
		<-d.cancel
	}
	d.timer = nil

	closed := isClosedChan(d.cancel)
	if t.IsZero() {
		if closed {
			d.cancel = make(chan struct{})
		}
		return
	}
	if dur := time.Until(t); dur > 0 {
		if closed {
			d.cancel = make(chan struct{})
		}
		cancel := d.cancel
		d.timer = time.AfterFunc(dur, func() {
			close(cancel)
		})
		return
	}
	if !closed {
		close(d.cancel)
	}
}

func (d *deadline) wait() chan struct{} {
	d.mu.Lock()
	ch := d.cancel
	d.mu.Unlock()
	return ch
}

func isClosedChan(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
