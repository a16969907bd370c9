package tinyhttputil

import (
	"fmt"
	"testing"
	"time"
)

func TestInmemoryListener(t *testing.T) {
	t.Parallel()

	ln := NewInmemoryListener()

	serverCh := make(chan struct{})
	go func() {
		defer close(serverCh)
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				var buf [32]byte
				n, err := conn.Read(buf[:])
				if err != nil {
					t.Errorf("unexpected error: %s", err)
					return
				}
				resp := fmt.Sprintf("response_%s", buf[len("request_"):n])
				if _, err := conn.Write([]byte(resp)); err != nil {
					t.Errorf("unexpected error: %s", err)
				}
			}()
		}
	}()

	ch := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { ch <- struct{}{} }()
			conn, err := ln.Dial()
			if err != nil {
				t.Errorf("unexpected error: %s", err)
				return
			}
			defer conn.Close()
			if _, err := conn.Write([]byte(fmt.Sprintf("request_%d", n))); err != nil {
				t.Errorf("unexpected error: %s", err)
				return
			}
			var buf [32]byte
			nn, err := conn.Read(buf[:])
			if err != nil {
				t.Errorf("unexpected error: %s", err)
				return
			}
			expected := fmt.Sprintf("response_%d", n)
			if string(buf[:nn]) != expected {
				t.Errorf("unexpected response %q. Expecting %q", buf[:nn], expected)
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("timeout")
		}
	}

	if err := ln.Close(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	select {
	case <-serverCh:
	case <-time.After(time.Second):
		t.Fatalf("timeout")
	}
	if err := ln.Close(); err != ErrInmemoryListenerClosed {
		t.Fatalf("unexpected error: %v. Expecting %v", err, ErrInmemoryListenerClosed)
	}
	if _, err := ln.Dial(); err != ErrInmemoryListenerClosed {
		t.Fatalf("unexpected error: %v. Expecting %v", err, ErrInmemoryListenerClosed)
	}
}
