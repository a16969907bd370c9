package tinyhttp

import (
	"net"
	"net/netip"
	"sync"
)

// ipConnCounter counts the open connections of each client address.
type ipConnCounter struct {
	mu sync.Mutex
	m  map[netip.Addr]int
}

// acquire registers a connection from ip and returns the number of
// connections from ip including this one.
func (cc *ipConnCounter) acquire(ip netip.Addr) int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.m == nil {
		cc.m = make(map[netip.Addr]int)
	}
	cc.m[ip]++
	return cc.m[ip]
}

func (cc *ipConnCounter) release(ip netip.Addr) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	n, ok := cc.m[ip]
	if !ok {
		panic("BUG: ipConnCounter.release() without acquire()")
	}
	if n <= 1 {
		delete(cc.m, ip)
		return
	}
	cc.m[ip] = n - 1
}

// count returns the number of open connections from ip.
func (cc *ipConnCounter) count(ip netip.Addr) int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.m[ip]
}

// limitedConn releases its slot in the counter on the first Close.
type limitedConn struct {
	net.Conn

	once    sync.Once
	ip      netip.Addr
	counter *ipConnCounter
}

func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() {
		c.counter.release(c.ip)
	})
	return err
}

// remoteIP returns the client address of c. Addresses which aren't IP,
// e.g. in-memory pipes, are reported as invalid.
func remoteIP(c net.Conn) netip.Addr {
	var ip net.IP
	switch a := c.RemoteAddr().(type) {
	case *net.TCPAddr:
		ip = a.IP
	case *net.UDPAddr:
		ip = a.IP
	default:
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// limitConnsPerIP counts c against Server.MaxConnsPerIP.
//
// nil is returned if the limit is exceeded. c is returned as is if its
// address is unknown.
func limitConnsPerIP(s *Server, c net.Conn) net.Conn {
	ip := remoteIP(c)
	if !ip.IsValid() || ip.IsUnspecified() {
		return c
	}
	if s.perIPConns.acquire(ip) > s.MaxConnsPerIP {
		s.perIPConns.release(ip)
		return nil
	}
	return &limitedConn{
		Conn:    c,
		ip:      ip,
		counter: &s.perIPConns,
	}
}
