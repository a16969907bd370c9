package tinyhttp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TemplateArgs holds typed values extracted from a template route.
//
// Values are int, float64, bool or string depending on the placeholder
// type.
type TemplateArgs map[string]interface{}

// Int returns the int value for the given name.
func (a TemplateArgs) Int(name string) (int, bool) {
	v, ok := a[name].(int)
	return v, ok
}

// Float returns the float64 value for the given name.
func (a TemplateArgs) Float(name string) (float64, bool) {
	v, ok := a[name].(float64)
	return v, ok
}

// Bool returns the bool value for the given name.
func (a TemplateArgs) Bool(name string) (bool, bool) {
	v, ok := a[name].(bool)
	return v, ok
}

// String returns the string value for the given name.
func (a TemplateArgs) String(name string) (string, bool) {
	v, ok := a[name].(string)
	return v, ok
}

// Placeholder types understood by URLTemplate.
const (
	TemplateInt   = "int"
	TemplateStr   = "str"
	TemplateFloat = "float"
	TemplateBool  = "bool"
	TemplatePath  = "path"
)

var templateTypePatterns = map[string]string{
	TemplateInt:   `\d+`,
	TemplateStr:   `\w+`,
	TemplateFloat: `\d+\.\d+`,
	TemplateBool:  `True|False`,
	TemplatePath:  `.+`,
}

var templatePlaceholderRe = regexp.MustCompile(`\{(\w+):(\w+)\}`)

// TemplateError is returned when a template route can't be compiled.
type TemplateError struct {
	Pattern string
	Name    string
	Type    string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("unknown type %q for placeholder %q in url template %q", e.Type, e.Name, e.Pattern)
}

// URLTemplate is a compiled path pattern with typed placeholders, e.g.
// /users/{id:int}/files/{name:path}.
//
// URLTemplate is immutable and may be used from concurrently running
// goroutines.
type URLTemplate struct {
	pattern     string
	re          *regexp.Regexp
	params      []templateParam
	handler     RequestHandler
	contentType string
}

type templateParam struct {
	name string
	typ  string
}

// NewURLTemplate compiles pattern and binds it to h.
//
// *TemplateError is returned for placeholders with an unknown type.
func NewURLTemplate(pattern string, h RequestHandler, contentType string) (*URLTemplate, error) {
	t := &URLTemplate{
		pattern:     pattern,
		handler:     h,
		contentType: contentType,
	}

	var b strings.Builder
	b.WriteByte('^')
	last := 0
	for _, m := range templatePlaceholderRe.FindAllStringSubmatchIndex(pattern, -1) {
		name, typ := pattern[m[2]:m[3]], pattern[m[4]:m[5]]
		re, ok := templateTypePatterns[typ]
		if !ok {
			return nil, &TemplateError{Pattern: pattern, Name: name, Type: typ}
		}
		b.WriteString(regexp.QuoteMeta(pattern[last:m[0]]))
		b.WriteByte('(')
		b.WriteString(re)
		b.WriteByte(')')
		t.params = append(t.params, templateParam{name: name, typ: typ})
		last = m[1]
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	t.re = re
	return t, nil
}

// MustURLTemplate is like NewURLTemplate but panics on error.
func MustURLTemplate(pattern string, h RequestHandler, contentType string) *URLTemplate {
	t, err := NewURLTemplate(pattern, h, contentType)
	if err != nil {
		panic(err)
	}
	return t
}

// Pattern returns the source pattern.
func (t *URLTemplate) Pattern() string {
	return t.pattern
}

// ContentType returns the declared content type.
func (t *URLTemplate) ContentType() string {
	return t.contentType
}

// Handler returns the bound handler.
func (t *URLTemplate) Handler() RequestHandler {
	return t.handler
}

// Matches returns true if the whole path matches the template.
func (t *URLTemplate) Matches(path string) bool {
	return t.re.MatchString(path)
}

// Extract returns placeholder values cast to their declared types.
//
// false is returned if path doesn't match the template.
func (t *URLTemplate) Extract(path string) (TemplateArgs, bool) {
	m := t.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	args := make(TemplateArgs, len(t.params))
	for i, p := range t.params {
		s := m[i+1]
		switch p.typ {
		case TemplateInt:
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, false
			}
			args[p.name] = n
		case TemplateFloat:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, false
			}
			args[p.name] = f
		case TemplateBool:
			args[p.name] = s == "True"
		default:
			args[p.name] = s
		}
	}
	return args, true
}

// EqualPath is the same as Matches. Routers use it for scanning templates
// against a request path.
func (t *URLTemplate) EqualPath(path string) bool {
	return t.Matches(path)
}

// Equal returns true if both templates were built from the same pattern.
func (t *URLTemplate) Equal(other *URLTemplate) bool {
	return other != nil && t.pattern == other.pattern
}

func (t *URLTemplate) String() string {
	return t.pattern
}
