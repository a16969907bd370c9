//go:build linux

package tcplisten

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const fastOpenQlen = 16 * 1024

const soMaxConnFilePath = "/proc/sys/net/core/somaxconn"

func newSocketCloexec(domain, typ, proto int) (int, error) {
	fd, err := unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
	if err == nil {
		return fd, nil
	}
	if err == unix.EPROTONOSUPPORT || err == unix.EINVAL {
		return newSocketCloexecOld(domain, typ, proto)
	}
	return -1, errors.Wrap(err, "cannot create listening unblocked socket")
}

func enableDeferAccept(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_DEFER_ACCEPT, 1); err != nil {
		return errors.Wrap(err, "cannot enable TCP_DEFER_ACCEPT")
	}
	return nil
}

func enableFastOpen(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_TCP, unix.TCP_FASTOPEN, fastOpenQlen); err != nil {
		return errors.Wrapf(err, "cannot enable TCP_FASTOPEN(qlen=%d)", fastOpenQlen)
	}
	return nil
}

func soMaxConn() (int, error) {
	data, err := os.ReadFile(soMaxConnFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return unix.SOMAXCONN, nil
		}
		return -1, err
	}
	s := strings.TrimSpace(string(data))
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return -1, errors.Errorf("cannot parse somaxconn %q read from %s", s, soMaxConnFilePath)
	}

	// Linux stores the backlog in a uint16 on old kernels.
	// See https://github.com/golang/go/issues/5030 .
	if n > 1<<16-1 && !kernelAtLeast(4, 1) {
		n = 1<<16 - 1
	}
	return n, nil
}

func kernelAtLeast(wantMajor, wantMinor int) bool {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return false
	}
	release := unix.ByteSliceToString(uname.Release[:])
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minor, _ := strconv.Atoi(strings.TrimFunc(parts[1], func(r rune) bool { return r < '0' || r > '9' }))
	return major > wantMajor || (major == wantMajor && minor >= wantMinor)
}
