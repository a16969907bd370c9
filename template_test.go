package tinyhttp

import (
	"errors"
	"reflect"
	"testing"
)

func nopHandler(ctx *RequestCtx) (Result, error) {
	return nil, nil
}

func TestURLTemplateExtract(t *testing.T) {
	t.Parallel()

	testURLTemplateExtract(t, "/users/{id:int}", "/users/42", TemplateArgs{"id": 42})
	testURLTemplateExtract(t, "/users/{id:int}", "/users/abc", nil)
	testURLTemplateExtract(t, "/users/{id:int}", "/users/42/", nil)
	testURLTemplateExtract(t, "/users/{id:int}", "/xusers/42", nil)
	testURLTemplateExtract(t, "/p/{x:float}", "/p/1.5", TemplateArgs{"x": 1.5})
	testURLTemplateExtract(t, "/p/{x:float}", "/p/1", nil)
	testURLTemplateExtract(t, "/b/{on:bool}", "/b/True", TemplateArgs{"on": true})
	testURLTemplateExtract(t, "/b/{on:bool}", "/b/False", TemplateArgs{"on": false})
	testURLTemplateExtract(t, "/b/{on:bool}", "/b/true", nil)
	testURLTemplateExtract(t, "/s/{name:str}", "/s/foo_bar", TemplateArgs{"name": "foo_bar"})
	testURLTemplateExtract(t, "/s/{name:str}", "/s/foo-bar", nil)
	testURLTemplateExtract(t, "/files/{p:path}", "/files/a/b/c.txt", TemplateArgs{"p": "a/b/c.txt"})
	testURLTemplateExtract(t, "/u/{id:int}/f/{name:str}", "/u/7/f/x", TemplateArgs{"id": 7, "name": "x"})
	testURLTemplateExtract(t, "/static.html", "/static.html", TemplateArgs{})
	testURLTemplateExtract(t, "/static.html", "/staticXhtml", nil)
}

func testURLTemplateExtract(t *testing.T, pattern, path string, expected TemplateArgs) {
	t.Helper()

	tpl, err := NewURLTemplate(pattern, nopHandler, "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	args, ok := tpl.Extract(path)
	if expected == nil {
		if ok {
			t.Fatalf("Unexpected match of %q against %q: %v", path, pattern, args)
		}
		if tpl.Matches(path) {
			t.Fatalf("Matches must agree with Extract for %q against %q", path, pattern)
		}
		return
	}
	if !ok {
		t.Fatalf("Expecting %q to match %q", path, pattern)
	}
	if !tpl.Matches(path) {
		t.Fatalf("Matches must agree with Extract for %q against %q", path, pattern)
	}
	if !reflect.DeepEqual(args, expected) {
		t.Fatalf("Unexpected args %v. Expecting %v", args, expected)
	}
}

func TestURLTemplateTypedArgs(t *testing.T) {
	t.Parallel()

	tpl := MustURLTemplate("/items/{id:int}/{price:float}/{ok:bool}/{name:str}", nopHandler, "application/json")
	args, ok := tpl.Extract("/items/7/9.99/True/apple")
	if !ok {
		t.Fatalf("expecting match")
	}
	if id, ok := args.Int("id"); !ok || id != 7 {
		t.Fatalf("Unexpected id %d", id)
	}
	if p, ok := args.Float("price"); !ok || p != 9.99 {
		t.Fatalf("Unexpected price %f", p)
	}
	if b, ok := args.Bool("ok"); !ok || !b {
		t.Fatalf("Unexpected ok %v", b)
	}
	if s, ok := args.String("name"); !ok || s != "apple" {
		t.Fatalf("Unexpected name %q", s)
	}
	if _, ok := args.Int("name"); ok {
		t.Fatalf("name isn't an int")
	}
	if tpl.ContentType() != "application/json" {
		t.Fatalf("Unexpected content type %q", tpl.ContentType())
	}
	if tpl.Handler() == nil {
		t.Fatalf("expecting non-nil handler")
	}
}

func TestURLTemplateEqual(t *testing.T) {
	t.Parallel()

	a := MustURLTemplate("/a/{x:int}", nopHandler, "")
	if !a.EqualPath("/a/5") {
		t.Fatalf("expecting template to equal /a/5")
	}
	if a.EqualPath("/a/b") {
		t.Fatalf("unexpected template equality with /a/b")
	}

	b := MustURLTemplate("/a/{x:int}", nil, "text/html")
	c := MustURLTemplate("/a/{y:int}", nopHandler, "")
	if !a.Equal(b) {
		t.Fatalf("templates with the same pattern must be equal")
	}
	if a.Equal(c) {
		t.Fatalf("templates with different patterns mustn't be equal")
	}
	if a.Equal(nil) {
		t.Fatalf("template mustn't equal nil")
	}
	if a.String() != "/a/{x:int}" || a.Pattern() != "/a/{x:int}" {
		t.Fatalf("Unexpected pattern %q", a.String())
	}
}

func TestURLTemplateUnknownType(t *testing.T) {
	t.Parallel()

	_, err := NewURLTemplate("/a/{x:uuid}", nopHandler, "")
	if err == nil {
		t.Fatalf("expecting error")
	}
	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("Unexpected error type %T. Expecting *TemplateError", err)
	}
	if te.Name != "x" || te.Type != "uuid" {
		t.Fatalf("Unexpected error %+v", te)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expecting panic")
		}
	}()
	MustURLTemplate("/a/{x:uuid}", nopHandler, "")
}
