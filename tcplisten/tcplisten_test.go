//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

package tcplisten

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"
)

func TestConfigDeferAccept(t *testing.T) {
	testConfig(t, Config{DeferAccept: true})
}

func TestConfigReusePort(t *testing.T) {
	testConfig(t, Config{ReusePort: true})
}

func TestConfigFastOpen(t *testing.T) {
	testConfig(t, Config{FastOpen: true})
}

func TestConfigAll(t *testing.T) {
	cfg := Config{
		ReusePort:   true,
		DeferAccept: true,
		FastOpen:    true,
	}
	testConfig(t, cfg)
}

func TestConfigBacklog(t *testing.T) {
	cfg := Config{
		Backlog: 32,
	}
	testConfig(t, cfg)
}

func TestConfigUnsupportedNetwork(t *testing.T) {
	var cfg Config
	if _, err := cfg.NewListener("udp4", "127.0.0.1:0"); err == nil {
		t.Fatalf("expecting error for udp4 network")
	}
}

func testConfig(t *testing.T, cfg Config) {
	const requestsCount = 100
	serversCount := 1
	if cfg.ReusePort {
		serversCount = 4
	}

	// Pick a free port first, since reuseport listeners must share it.
	probe, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("cannot pick a free port: %s", err)
	}
	addr := probe.Addr().String()
	probe.Close()

	doneCh := make(chan struct{}, serversCount)
	var lns []net.Listener
	for i := 0; i < serversCount; i++ {
		ln, err := cfg.NewListener("tcp4", addr)
		if err != nil {
			t.Fatalf("cannot create listener %d using Config %#v: %s", i, &cfg, err)
		}
		go func() {
			serveEcho(ln)
			doneCh <- struct{}{}
		}()
		lns = append(lns, ln)
	}

	for i := 0; i < requestsCount; i++ {
		c, err := net.Dial("tcp4", addr)
		if err != nil {
			t.Fatalf("%d. unexpected error when dialing: %s", i, err)
		}
		req := fmt.Sprintf("request number %d", i)
		if _, err = c.Write([]byte(req)); err != nil {
			t.Fatalf("%d. unexpected error when writing request: %s", i, err)
		}
		if err = c.(*net.TCPConn).CloseWrite(); err != nil {
			t.Fatalf("%d. unexpected error when closing write end of the connection: %s", i, err)
		}

		if err = c.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			t.Fatalf("%d. cannot set read deadline: %s", i, err)
		}
		resp, err := io.ReadAll(c)
		if err != nil {
			t.Fatalf("%d. unexpected error when reading response: %s", i, err)
		}
		if string(resp) != req {
			t.Fatalf("%d. unexpected response %q. Expecting %q", i, resp, req)
		}
		if err = c.Close(); err != nil {
			t.Fatalf("%d. unexpected error when closing connection: %s", i, err)
		}
	}

	for _, ln := range lns {
		if err := ln.Close(); err != nil {
			t.Fatalf("unexpected error when closing listener: %s", err)
		}
	}

	for i := 0; i < serversCount; i++ {
		select {
		case <-doneCh:
		case <-time.After(time.Second):
			t.Fatalf("timeout when waiting for servers to be closed")
		}
	}
}

func serveEcho(ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		req, err := io.ReadAll(c)
		if err == nil {
			_, _ = c.Write(req)
		}
		c.Close()
	}
}
