package tinyhttp

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Args represents query or form arguments.
//
// Keys and values are kept in their decoded form. Duplicate keys are
// allowed; Peek returns the first one.
//
// It is unsafe modifying/reading Args instance from concurrently
// running goroutines.
type Args struct {
	args []argsKV
	buf  []byte
}

type argsKV struct {
	key   []byte
	value []byte
}

// Reset clears args.
func (a *Args) Reset() {
	a.args = a.args[:0]
}

// CopyTo copies all args to dst.
func (a *Args) CopyTo(dst *Args) {
	dst.Reset()
	dst.args = copyArgs(dst.args, a.args)
}

// VisitAll calls f for each existing arg.
//
// f must not retain references to key and value after returning.
func (a *Args) VisitAll(f func(key, value []byte)) {
	for i, n := 0, len(a.args); i < n; i++ {
		kv := &a.args[i]
		f(kv.key, kv.value)
	}
}

// Len returns the number of args.
func (a *Args) Len() int {
	return len(a.args)
}

// Parse parses a query string.
//
// Pairs are separated by '&', key and value by the first '='. Both are
// percent-decoded with Unescape; '+' is kept.
func (a *Args) Parse(s string) {
	a.parse(s, false)
}

// ParseForm parses an application/x-www-form-urlencoded body.
//
// It is the same as Parse except '+' is decoded to space.
func (a *Args) ParseForm(b []byte) {
	a.parse(b2s(b), true)
}

func (a *Args) parse(s string, decodePlus bool) {
	a.Reset()

	var sc argsScanner
	sc.b = s
	sc.decodePlus = decodePlus

	var kv *argsKV
	a.args, kv = allocArg(a.args)
	for sc.next(kv) {
		if len(kv.key) > 0 || len(kv.value) > 0 {
			a.args, kv = allocArg(a.args)
		}
	}
	a.args = a.args[:len(a.args)-1]
}

// String returns the percent-encoded query string for the args.
func (a *Args) String() string {
	a.buf = a.AppendBytes(a.buf[:0])
	return string(a.buf)
}

// AppendBytes appends the percent-encoded query string to dst and returns
// the extended dst.
func (a *Args) AppendBytes(dst []byte) []byte {
	for i, n := 0, len(a.args); i < n; i++ {
		kv := &a.args[i]
		dst = appendQuotedArg(dst, b2s(kv.key))
		if len(kv.value) > 0 {
			dst = append(dst, '=')
			dst = appendQuotedArg(dst, b2s(kv.value))
		}
		if i+1 < n {
			dst = append(dst, '&')
		}
	}
	return dst
}

// WriteTo writes the query string to w.
func (a *Args) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, a.String())
	return int64(n), err
}

// Del deletes the first argument with the given key.
func (a *Args) Del(key string) {
	for i, n := 0, len(a.args); i < n; i++ {
		kv := &a.args[i]
		if string(kv.key) == key {
			tmp := *kv
			copy(a.args[i:], a.args[i+1:])
			a.args[n-1] = tmp
			a.args = a.args[:n-1]
			return
		}
	}
}

// Set sets 'key=value' argument, replacing the first existing one.
func (a *Args) Set(key, value string) {
	for i, n := 0, len(a.args); i < n; i++ {
		kv := &a.args[i]
		if string(kv.key) == key {
			kv.value = append(kv.value[:0], value...)
			return
		}
	}
	a.Add(key, value)
}

// Add appends 'key=value' argument even if the key already exists.
func (a *Args) Add(key, value string) {
	var kv *argsKV
	a.args, kv = allocArg(a.args)
	kv.key = append(kv.key[:0], key...)
	kv.value = append(kv.value[:0], value...)
}

// Peek returns the value for the given key.
//
// Returned value is valid until the next Args call.
func (a *Args) Peek(key string) []byte {
	for i, n := 0, len(a.args); i < n; i++ {
		kv := &a.args[i]
		if string(kv.key) == key {
			return kv.value
		}
	}
	return nil
}

// Get returns the value for the given key as a string.
func (a *Args) Get(key string) string {
	return string(a.Peek(key))
}

// Has returns true if the given key exists in Args.
func (a *Args) Has(key string) bool {
	for i, n := 0, len(a.args); i < n; i++ {
		if string(a.args[i].key) == key {
			return true
		}
	}
	return false
}

// ErrNoArgValue is returned when Args value with the given key is missing.
var ErrNoArgValue = errors.New("no Args value for the given key")

// GetUint returns uint value for the given key.
func (a *Args) GetUint(key string) (int, error) {
	value := a.Peek(key)
	if len(value) == 0 {
		return -1, ErrNoArgValue
	}
	return ParseUint(value)
}

// GetUintOrZero returns uint value for the given key.
//
// Zero (0) is returned on error.
func (a *Args) GetUintOrZero(key string) int {
	n, err := a.GetUint(key)
	if err != nil {
		n = 0
	}
	return n
}

func copyArgs(dst, src []argsKV) []argsKV {
	if cap(dst) < len(src) {
		tmp := make([]argsKV, len(src))
		copy(tmp, dst)
		dst = tmp
	}
	n := len(src)
	dst = dst[:n]
	for i := 0; i < n; i++ {
		dstKV := &dst[i]
		srcKV := &src[i]
		dstKV.key = append(dstKV.key[:0], srcKV.key...)
		dstKV.value = append(dstKV.value[:0], srcKV.value...)
	}
	return dst
}

func allocArg(h []argsKV) ([]argsKV, *argsKV) {
	n := len(h)
	if cap(h) > n {
		h = h[:n+1]
	} else {
		h = append(h, argsKV{})
	}
	return h, &h[n]
}

type argsScanner struct {
	b          string
	decodePlus bool
}

func (s *argsScanner) next(kv *argsKV) bool {
	if len(s.b) == 0 {
		return false
	}

	pair := s.b
	if n := strings.IndexByte(pair, '&'); n >= 0 {
		pair, s.b = pair[:n], pair[n+1:]
	} else {
		s.b = s.b[len(s.b):]
	}

	k, v, _ := strings.Cut(pair, "=")
	kv.key = decodeArg(kv.key, k, s.decodePlus)
	kv.value = decodeArg(kv.value, v, s.decodePlus)
	return true
}

func decodeArg(dst []byte, src string, decodePlus bool) []byte {
	dst = dst[:0]
	if decodePlus && strings.IndexByte(src, '+') >= 0 {
		src = strings.ReplaceAll(src, "+", " ")
	}
	return AppendUnescaped(dst, src)
}
