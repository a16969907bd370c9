//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package tcplisten

import "golang.org/x/sys/unix"

func newSocketCloexec(domain, typ, proto int) (int, error) {
	return newSocketCloexecOld(domain, typ, proto)
}

// SO_ACCEPTFILTER would be the closest match, it isn't available on all
// these platforms.
func enableDeferAccept(fd int) error {
	return nil
}

func enableFastOpen(fd int) error {
	return nil
}

func soMaxConn() (int, error) {
	return unix.SOMAXCONN, nil
}
