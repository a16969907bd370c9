package tinyhttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/panjf2000/gnet"
	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
)

// gnetConn adapts one framed request of a gnet connection to net.Conn, so
// it may be served by the regular keep-alive loop.
type gnetConn struct {
	c gnet.Conn
	r []byte
	w *bytebufferpool.ByteBuffer
}

func (gc *gnetConn) reset(c gnet.Conn, frame []byte) {
	gc.c = c
	gc.r = frame
	if gc.w == nil {
		gc.w = bytebufferpool.Get()
	}
	gc.w.Reset()
}

// Read reads from the framed request. io.EOF is returned at the end of the
// frame, which ends the keep-alive loop without a response.
func (gc *gnetConn) Read(b []byte) (int, error) {
	if len(gc.r) == 0 {
		return 0, io.EOF
	}
	n := copy(b, gc.r)
	gc.r = gc.r[n:]
	return n, nil
}

// Write buffers the response until the event loop sends it.
func (gc *gnetConn) Write(b []byte) (int, error) {
	return gc.w.Write(b)
}

// Close is a no-op. The event loop closes the connection.
func (gc *gnetConn) Close() error {
	return nil
}

func (gc *gnetConn) LocalAddr() net.Addr {
	return gc.c.LocalAddr()
}

func (gc *gnetConn) RemoteAddr() net.Addr {
	return gc.c.RemoteAddr()
}

// Deadlines don't apply, the frame is already in memory.
func (gc *gnetConn) SetDeadline(t time.Time) error      { return nil }
func (gc *gnetConn) SetReadDeadline(t time.Time) error  { return nil }
func (gc *gnetConn) SetWriteDeadline(t time.Time) error { return nil }

// closeAfterWrite marks gnet connections to be closed once the response
// is written.
type closeAfterWrite struct{}

// gnetHTTP is the gnet event handler serving s.
type gnetHTTP struct {
	gnet.EventServer
	s *Server
}

// OnInitComplete fires when the server is ready for accepting connections.
func (es *gnetHTTP) OnInitComplete(srv gnet.Server) (action gnet.Action) {
	es.s.logger().Info().
		Str("addr", srv.Addr.String()).
		Bool("multicore", srv.Multicore).
		Int("loops", srv.NumEventLoop).
		Msg("serving with gnet")
	return
}

// OnClosed fires when a connection has been closed.
func (es *gnetHTTP) OnClosed(c gnet.Conn, err error) (action gnet.Action) {
	if err != nil {
		debugf(es.s.logger(), "gnet connection %s closed: %s", c.RemoteAddr(), err)
	}
	return
}

// React sends the response produced by the codec and closes the connection
// if the request asked for it.
func (es *gnetHTTP) React(frame []byte, c gnet.Conn) (out []byte, action gnet.Action) {
	out = frame
	if _, ok := c.Context().(closeAfterWrite); ok {
		action = gnet.Close
	}
	return
}

// gnetCodec cuts complete requests out of the inbound buffer and serves
// them. Decode returns the serialized response.
type gnetCodec struct {
	s        *Server
	connPool sync.Pool
}

func (hc *gnetCodec) Encode(c gnet.Conn, buf []byte) ([]byte, error) {
	return buf, nil
}

func (hc *gnetCodec) Decode(c gnet.Conn) ([]byte, error) {
	buf := c.Read()
	if len(buf) == 0 {
		return nil, nil
	}
	n, ok := requestFrameLength(buf, hc.s.maxHeaderSize(), hc.s.maxRequestBodySize())
	if !ok {
		// Wait for the rest of the request.
		return nil, nil
	}

	gc := hc.acquireConn()
	gc.reset(c, buf[:n])
	keepAlive, err := hc.s.serveRequests(gc, nil)
	out := append([]byte{}, gc.w.B...)
	hc.releaseConn(gc)
	c.ShiftN(n)

	if err != nil || !keepAlive {
		if err != nil {
			debugf(hc.s.logger(), "error when serving gnet connection %s: %s", c.RemoteAddr(), err)
		}
		c.SetContext(closeAfterWrite{})
	}
	return out, nil
}

func (hc *gnetCodec) acquireConn() *gnetConn {
	v := hc.connPool.Get()
	if v == nil {
		return &gnetConn{}
	}
	return v.(*gnetConn)
}

func (hc *gnetCodec) releaseConn(gc *gnetConn) {
	gc.c = nil
	gc.r = nil
	hc.connPool.Put(gc)
}

// ListenAndServeGnet serves HTTP requests on addr using the gnet
// event-loop transport instead of a goroutine per connection.
//
// Server.ReadTimeout, Server.WriteTimeout and Server.MaxConnsPerIP don't
// apply to this transport.
func (s *Server) ListenAndServeGnet(addr string) error {
	s.Router.freeze()
	startServerDateUpdater()
	defer stopServerDateUpdater()

	hc := &gnetCodec{s: s}
	es := &gnetHTTP{s: s}
	err := gnet.Serve(es, gnetAddr(addr),
		gnet.WithMulticore(true),
		gnet.WithReusePort(s.ReusePort),
		gnet.WithCodec(hc))
	if err != nil {
		return errors.Wrapf(err, "cannot serve gnet on %q", addr)
	}
	return nil
}

// StopGnet stops the gnet server listening on addr.
func StopGnet(ctx context.Context, addr string) error {
	return gnet.Stop(ctx, gnetAddr(addr))
}

func gnetAddr(addr string) string {
	return fmt.Sprintf("tcp://%s", addr)
}
