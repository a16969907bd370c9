package tinyhttp

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/pkg/errors"
)

const maxIntChars = 18

var gmtLocation = func() *time.Location {
	x, err := time.LoadLocation("GMT")
	if err != nil {
		panic(fmt.Sprintf("cannot load GMT location: %s", err))
	}
	return x
}()

// AppendHTTPDate appends HTTP-compliant (RFC1123) representation of date
// to dst and returns dst (which may be newly allocated).
func AppendHTTPDate(dst []byte, date time.Time) []byte {
	return date.In(gmtLocation).AppendFormat(dst, time.RFC1123)
}

// AppendUint appends n to dst and returns dst (which may be newly allocated).
func AppendUint(dst []byte, n int) []byte {
	if n < 0 {
		panic("BUG: int must be positive")
	}

	var b [20]byte
	buf := b[:]
	i := len(buf)
	var q int
	for n >= 10 {
		i--
		q = n / 10
		buf[i] = '0' + byte(n-q*10)
		n = q
	}
	i--
	buf[i] = '0' + byte(n)

	dst = append(dst, buf[i:]...)
	return dst
}

// ParseUint parses uint from buf.
func ParseUint(buf []byte) (int, error) {
	v, n, err := parseUintBuf(buf)
	if n != len(buf) {
		return -1, errors.Errorf("only %d bytes out of %d bytes exhausted when parsing int %q", n, len(buf), buf)
	}
	return v, err
}

func parseUintBuf(b []byte) (int, int, error) {
	n := len(b)
	if n == 0 {
		return -1, 0, errors.New("empty integer")
	}
	v := 0
	for i := 0; i < n; i++ {
		c := b[i]
		k := c - '0'
		if k > 9 {
			if i == 0 {
				return -1, i, errors.Errorf("unexpected first char %c. Expected 0-9", c)
			}
			return v, i, nil
		}
		if i >= maxIntChars {
			return -1, i, errors.Errorf("too long int %q", b[:i+1])
		}
		v = 10*v + int(k)
	}
	return v, n, nil
}

func hexCharUpper(c byte) byte {
	if c < 10 {
		return '0' + c
	}
	return c - 10 + 'A'
}

var hex2intTable = func() [256]byte {
	var b [256]byte
	for i := 0; i < 256; i++ {
		c := byte(0)
		switch {
		case i >= '0' && i <= '9':
			c = 1 + byte(i) - '0'
		case i >= 'a' && i <= 'f':
			c = 1 + byte(i) - 'a' + 10
		case i >= 'A' && i <= 'F':
			c = 1 + byte(i) - 'A' + 10
		}
		b[i] = c
	}
	return b
}()

func hexbyte2int(c byte) int {
	return int(hex2intTable[c]) - 1
}

const toLower = 'a' - 'A'

func lowercaseByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + toLower
	}
	return c
}

func uppercaseByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - toLower
	}
	return c
}

// caseInsensitiveEqual reports whether a and b are equal ignoring ASCII case.
func caseInsensitiveEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if lowercaseByte(a[i]) != lowercaseByte(b[i]) {
			return false
		}
	}
	return true
}

// appendQuotedArg percent-encodes every byte outside [0-9a-zA-Z/.-_~].
func appendQuotedArg(dst []byte, v string) []byte {
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
			c == '/' || c == '.' || c == '-' || c == '_' || c == '~' {
			dst = append(dst, c)
		} else {
			dst = append(dst, '%', hexCharUpper(c>>4), hexCharUpper(c&15))
		}
	}
	return dst
}

// b2s converts byte slice to a string without memory allocation.
func b2s(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
