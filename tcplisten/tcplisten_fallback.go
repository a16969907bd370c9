//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd)

package tcplisten

import "net"

// NewListener returns a plain TCP listener. Config options aren't
// supported on this platform.
func (cfg *Config) NewListener(network, addr string) (net.Listener, error) {
	return net.Listen(network, addr)
}
