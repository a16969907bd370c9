package tinyhttp

import (
	"bytes"
	"testing"
)

func TestArgsParse(t *testing.T) {
	t.Parallel()

	var a Args

	testArgsParse(t, &a, "", 0, "foo=", "bar=", "=")
	testArgsParse(t, &a, "&", 0, "foo=", "bar=", "=")
	testArgsParse(t, &a, "a=b", 1, "a=b", "foo=")
	testArgsParse(t, &a, "name=Bob", 1, "name=Bob")
	testArgsParse(t, &a, "a=b&c=d", 2, "a=b", "c=d")
	testArgsParse(t, &a, "a=b&&c=d&", 2, "a=b", "c=d")
	testArgsParse(t, &a, "a=b=c", 1, "a=b=c")
	testArgsParse(t, &a, "foo", 1, "foo=")
	testArgsParse(t, &a, "x=%20y%C3%A9", 1, "x= yé")
	testArgsParse(t, &a, "a+b=c+d", 1, "a+b=c+d")
	testArgsParse(t, &a, "q=100%", 1, "q=100%")
}

func testArgsParse(t *testing.T, a *Args, s string, expectedLen int, expectedArgs ...string) {
	t.Helper()

	a.Parse(s)
	if a.Len() != expectedLen {
		t.Fatalf("Unexpected args len %d. Expecting %d. s=%q", a.Len(), expectedLen, s)
	}
	for _, xx := range expectedArgs {
		tmp := bytes.SplitN([]byte(xx), []byte("="), 2)
		k, v := string(tmp[0]), string(tmp[1])
		buf := a.Peek(k)
		if string(buf) != v {
			t.Fatalf("Unexpected value for key=%q: %q. Expecting %q. s=%q", k, buf, v, s)
		}
	}
}

func TestArgsParseForm(t *testing.T) {
	t.Parallel()

	var a Args
	a.ParseForm([]byte("first+name=John+Doe&city=New%20York"))
	if v := a.Get("first name"); v != "John Doe" {
		t.Fatalf("Unexpected value %q. Expecting %q", v, "John Doe")
	}
	if v := a.Get("city"); v != "New York" {
		t.Fatalf("Unexpected value %q. Expecting %q", v, "New York")
	}
}

func TestArgsDuplicateKeys(t *testing.T) {
	t.Parallel()

	var a Args
	a.Parse("a=1&a=2&b=3")
	if a.Len() != 3 {
		t.Fatalf("Unexpected args len %d. Expecting %d", a.Len(), 3)
	}
	if v := a.Get("a"); v != "1" {
		t.Fatalf("Unexpected value %q. Expecting %q", v, "1")
	}

	a.Del("a")
	if v := a.Get("a"); v != "2" {
		t.Fatalf("Unexpected value %q. Expecting %q", v, "2")
	}

	a.Set("a", "4")
	a.Add("a", "5")
	if v := a.Get("a"); v != "4" {
		t.Fatalf("Unexpected value %q. Expecting %q", v, "4")
	}

	var keys []string
	a.VisitAll(func(key, value []byte) {
		keys = append(keys, string(key)+"="+string(value))
	})
	expected := []string{"a=4", "b=3", "a=5"}
	if len(keys) != len(expected) {
		t.Fatalf("Unexpected args %q. Expecting %q", keys, expected)
	}
	for i := range keys {
		if keys[i] != expected[i] {
			t.Fatalf("Unexpected args %q. Expecting %q", keys, expected)
		}
	}
}

func TestArgsString(t *testing.T) {
	t.Parallel()

	var a Args
	a.Add("name", "Bob Smith")
	a.Add("empty", "")
	a.Add("x", "a&b=c")
	s := a.String()
	expected := "name=Bob%20Smith&empty&x=a%26b%3Dc"
	if s != expected {
		t.Fatalf("Unexpected string %q. Expecting %q", s, expected)
	}

	var b Args
	b.Parse(s)
	if v := b.Get("x"); v != "a&b=c" {
		t.Fatalf("Unexpected value %q. Expecting %q", v, "a&b=c")
	}

	var c Args
	a.CopyTo(&c)
	a.Reset()
	if c.String() != expected {
		t.Fatalf("Unexpected copy %q. Expecting %q", c.String(), expected)
	}
}

func TestArgsGetUint(t *testing.T) {
	t.Parallel()

	var a Args
	a.Parse("n=123&bad=12x&empty=")
	if n, err := a.GetUint("n"); err != nil || n != 123 {
		t.Fatalf("Unexpected GetUint result %d, %v. Expecting 123", n, err)
	}
	if _, err := a.GetUint("bad"); err == nil {
		t.Fatalf("expecting error")
	}
	if _, err := a.GetUint("empty"); err != ErrNoArgValue {
		t.Fatalf("Unexpected error %v. Expecting %v", err, ErrNoArgValue)
	}
	if n := a.GetUintOrZero("missing"); n != 0 {
		t.Fatalf("Unexpected value %d. Expecting 0", n)
	}
	if !a.Has("empty") || a.Has("missing") {
		t.Fatalf("unexpected Has result")
	}
}
