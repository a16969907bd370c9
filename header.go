package tinyhttp

import (
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/http/httpguts"
)

// HeaderLine is a single header field: a canonical key and an ordered list
// of values.
//
// Values are rendered on the wire joined with "; ". Duplicate values are
// allowed.
type HeaderLine struct {
	key    string
	values []string
}

// NewHeaderLine returns a header line for the given field name and values.
//
// The name is canonicalized with CanonicalHeaderKey.
func NewHeaderLine(name string, values ...string) HeaderLine {
	return HeaderLine{
		key:    CanonicalHeaderKey(name),
		values: append([]string(nil), values...),
	}
}

// Key returns the canonical key, e.g. Content_Type.
func (l *HeaderLine) Key() string {
	return l.key
}

// Name returns the field name as sent on the wire, e.g. Content-Type.
func (l *HeaderLine) Name() string {
	return wireHeaderName(l.key)
}

// Values returns the line values.
//
// The returned slice must not be modified.
func (l *HeaderLine) Values() []string {
	return l.values
}

// Value returns all the values joined with "; ".
func (l *HeaderLine) Value() string {
	return strings.Join(l.values, "; ")
}

// AppendBytes appends "Name: v1; v2" to dst and returns the extended dst.
func (l *HeaderLine) AppendBytes(dst []byte) []byte {
	for i := 0; i < len(l.key); i++ {
		c := l.key[i]
		if c == '_' {
			c = '-'
		}
		dst = append(dst, c)
	}
	dst = append(dst, ':', ' ')
	for i, v := range l.values {
		if i > 0 {
			dst = append(dst, ';', ' ')
		}
		dst = append(dst, v...)
	}
	return dst
}

// String returns "Name: v1; v2".
func (l *HeaderLine) String() string {
	return string(l.AppendBytes(nil))
}

func (l *HeaderLine) hasValue(v string) bool {
	for _, x := range l.values {
		if x == v {
			return true
		}
	}
	return false
}

// Header is an ordered collection of header lines.
//
// Lookups compare names case-insensitively and treat '-' and '_' alike.
// Only Merge keeps names unique; AddLine may create duplicates.
//
// Header instance MUST NOT be used from concurrently running goroutines.
type Header struct {
	lines []HeaderLine
}

// Parse parses raw header text and appends the recognized lines.
//
// raw is split on '\n'. Each line is split at its first ':'. Lines without
// a colon, with an invalid field name or value, or with a field name outside
// the recognized request header vocabulary are skipped and logged at debug
// level to logger, which may be nil.
//
// It is safe modifying raw after the return.
func (h *Header) Parse(raw []byte, logger *zerolog.Logger) {
	h.ParseString(string(raw), logger)
}

// ParseString is like Parse but takes a string.
func (h *Header) ParseString(s string, logger *zerolog.Logger) {
	for len(s) > 0 {
		var line string
		if n := strings.IndexByte(s, '\n'); n >= 0 {
			line, s = s[:n], s[n+1:]
		} else {
			line, s = s, ""
		}
		line = strings.TrimSuffix(line, "\r")
		if len(line) == 0 {
			continue
		}

		k, v, ok := strings.Cut(line, ":")
		if !ok || !httpguts.ValidHeaderFieldName(k) {
			debugf(logger, "dropping malformed header line %q", line)
			continue
		}
		key := CanonicalHeaderKey(k)
		if !IsRequestHeader(key) {
			debugf(logger, "dropping unrecognized header %q", k)
			continue
		}
		v = strings.TrimSpace(v)
		if !httpguts.ValidHeaderFieldValue(v) {
			debugf(logger, "dropping header %q with invalid value", k)
			continue
		}
		h.lines = append(h.lines, HeaderLine{
			key:    key,
			values: splitHeaderValue(v),
		})
	}
}

func splitHeaderValue(v string) []string {
	if len(v) == 0 {
		return nil
	}
	n := strings.Count(v, ";") + 1
	values := make([]string, 0, n)
	for _, part := range strings.Split(v, ";") {
		part = strings.TrimSpace(part)
		if len(part) > 0 {
			values = append(values, part)
		}
	}
	return values
}

// AddLine appends line unconditionally.
func (h *Header) AddLine(line HeaderLine) {
	h.lines = append(h.lines, line)
}

// Add appends a new line with the given name and values.
func (h *Header) Add(name string, values ...string) {
	h.AddLine(NewHeaderLine(name, values...))
}

// Merge merges line into the first existing line with the same name.
//
// Values already present in the existing line are skipped. Merge returns
// true if any value was added. false is returned if there is no line with
// the same name; the caller is responsible for adding it then.
func (h *Header) Merge(line HeaderLine) bool {
	dst := h.find(line.key)
	if dst == nil {
		return false
	}
	changed := false
	for _, v := range line.values {
		if !dst.hasValue(v) {
			dst.values = append(dst.values, v)
			changed = true
		}
	}
	return changed
}

// Set merges the given values into the line with the given name, adding
// a new line if there is none.
func (h *Header) Set(name string, values ...string) {
	line := NewHeaderLine(name, values...)
	if h.find(line.key) == nil {
		h.AddLine(line)
		return
	}
	h.Merge(line)
}

// Replace overwrites the values of the first line with the given name,
// adding a new line if there is none.
func (h *Header) Replace(name string, values ...string) {
	line := NewHeaderLine(name, values...)
	if dst := h.find(line.key); dst != nil {
		dst.values = line.values
		return
	}
	h.AddLine(line)
}

// Remove deletes the first line with the given name.
//
// Names are compared case-insensitively, the same as in Merge.
func (h *Header) Remove(name string) bool {
	key := CanonicalHeaderKey(name)
	for i := range h.lines {
		if h.lines[i].key == key {
			copy(h.lines[i:], h.lines[i+1:])
			h.lines[len(h.lines)-1] = HeaderLine{}
			h.lines = h.lines[:len(h.lines)-1]
			return true
		}
	}
	return false
}

// Fields returns canonical key -> values.
//
// If several lines share a name, the last one wins.
func (h *Header) Fields() map[string][]string {
	m := make(map[string][]string, len(h.lines))
	for i := range h.lines {
		l := &h.lines[i]
		m[l.key] = l.values
	}
	return m
}

// Contains returns true if a line with the given name exists.
func (h *Header) Contains(name string) bool {
	_, ok := h.Fields()[CanonicalHeaderKey(name)]
	return ok
}

// Peek returns the values of the first line with the given name.
func (h *Header) Peek(name string) []string {
	if l := h.find(CanonicalHeaderKey(name)); l != nil {
		return l.values
	}
	return nil
}

// Value returns the values of the first line with the given name joined
// with "; ".
func (h *Header) Value(name string) string {
	return strings.Join(h.Peek(name), "; ")
}

// Len returns the number of lines.
func (h *Header) Len() int {
	return len(h.lines)
}

// Lines returns the header lines in order.
//
// The returned slice must not be modified.
func (h *Header) Lines() []HeaderLine {
	return h.lines
}

// VisitAll calls f for each line in order.
func (h *Header) VisitAll(f func(name string, values []string)) {
	for i := range h.lines {
		l := &h.lines[i]
		f(l.Name(), l.values)
	}
}

// Reset removes all the lines.
func (h *Header) Reset() {
	for i := range h.lines {
		h.lines[i] = HeaderLine{}
	}
	h.lines = h.lines[:0]
}

// CopyTo copies all the lines to dst.
func (h *Header) CopyTo(dst *Header) {
	dst.Reset()
	for i := range h.lines {
		l := &h.lines[i]
		dst.lines = append(dst.lines, HeaderLine{
			key:    l.key,
			values: append([]string(nil), l.values...),
		})
	}
}

// String returns the lines joined with '\n'.
func (h *Header) String() string {
	var b []byte
	for i := range h.lines {
		if i > 0 {
			b = append(b, '\n')
		}
		b = h.lines[i].AppendBytes(b)
	}
	return string(b)
}

// AppendBytes appends the wire form of the header to dst, each line
// terminated by CRLF, and returns the extended dst.
func (h *Header) AppendBytes(dst []byte) []byte {
	for i := range h.lines {
		dst = h.lines[i].AppendBytes(dst)
		dst = append(dst, strCRLF...)
	}
	return dst
}

func (h *Header) find(key string) *HeaderLine {
	for i := range h.lines {
		if h.lines[i].key == key {
			return &h.lines[i]
		}
	}
	return nil
}

// CanonicalHeaderKey returns the canonical key for the header field name.
//
// Words are separated by '-' or '_'. The first letter of each word is
// uppercased, other letters are lowercased and separators become '_'.
// Other bytes are kept as is. Examples:
//
//   - content-type -> Content_Type
//   - CONTENT_TYPE -> Content_Type
//   - te -> Te
func CanonicalHeaderKey(name string) string {
	b := make([]byte, len(name))
	upper := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '-' || c == '_':
			c = '_'
			upper = true
		case upper:
			c = uppercaseByte(c)
			upper = false
		default:
			c = lowercaseByte(c)
		}
		b[i] = c
	}
	return b2s(b)
}

func wireHeaderName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}
