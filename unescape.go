package tinyhttp

import (
	"strings"
	"unicode/utf8"
)

// Unescape decodes percent-encoded sequences in s.
//
// Consecutive %XX triplets forming one UTF-8 encoded code point are decoded
// together. A sequence which isn't valid UTF-8 is dropped from the output.
// Anything that doesn't look like %XX, including '%' followed by non-hex
// chars, is passed through unchanged. '+' is left as is.
//
// Unescape never fails.
func Unescape(s string) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}
	return string(AppendUnescaped(nil, s))
}

// AppendUnescaped appends unescaped s to dst and returns the extended dst.
//
// See Unescape for details.
func AppendUnescaped(dst []byte, s string) []byte {
	var seq [utf8.UTFMax]byte
	n, want := 0, 0
	for i := 0; i < len(s); {
		c := s[i]
		if c == '%' && i+2 < len(s) {
			x1 := hexbyte2int(s[i+1])
			x2 := hexbyte2int(s[i+2])
			if x1 >= 0 && x2 >= 0 {
				b := byte(x1<<4 | x2)
				i += 3
				if n == 0 {
					want = utf8SeqLen(b)
				}
				seq[n] = b
				n++
				if n == want {
					dst = appendValidUTF8(dst, seq[:n])
					n = 0
				}
				continue
			}
		}
		if n > 0 {
			dst = appendValidUTF8(dst, seq[:n])
			n = 0
		}
		dst = append(dst, c)
		i++
	}
	if n > 0 {
		dst = appendValidUTF8(dst, seq[:n])
	}
	return dst
}

// utf8SeqLen returns the number of bytes in the UTF-8 sequence started by b,
// judged by the leading ones of its top nibble.
func utf8SeqLen(b byte) int {
	switch b >> 4 {
	case 0xc, 0xd:
		return 2
	case 0xe:
		return 3
	case 0xf:
		return 4
	}
	return 1
}

func appendValidUTF8(dst, seq []byte) []byte {
	if !utf8.Valid(seq) {
		return dst
	}
	return append(dst, seq...)
}
