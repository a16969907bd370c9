package tinyhttp

import (
	"sort"
	"strings"
	"sync/atomic"
)

// RequestHandler must process incoming requests.
//
// The returned Result is written to ctx.Response. A returned error is
// logged and turned into a 404 Not Found response, unless it is a
// *StatusError, which selects the status explicitly.
//
// RequestHandler should avoid holding references to ctx and its members
// after the return.
type RequestHandler func(ctx *RequestCtx) (Result, error)

// Router maps request paths to handlers, one table per method.
//
// Lookups try the exact path first, then "<host>:<path>", then the
// templates in registration order.
//
// Routes must be registered before the server starts serving. Router is
// read-only afterwards and registering a route panics.
type Router struct {
	routes    [methodCount]map[string]route
	templates [methodCount][]*URLTemplate

	frozen int32
}

type route struct {
	handler     RequestHandler
	contentType string
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Handle registers h for method and path.
//
// path may be prefixed with a host name, e.g. "example.com:/index", in which
// case the route only matches requests with that Host header.
// Registering the same method and path again replaces the handler.
func (r *Router) Handle(method Method, path string, h RequestHandler, contentType string) {
	r.mustNotBeFrozen()
	if method == MethodUnknown || method >= methodCount {
		panic("BUG: cannot register route for unknown method")
	}
	if h == nil {
		panic("BUG: nil handler for " + path)
	}
	m := r.routes[method]
	if m == nil {
		m = make(map[string]route)
		r.routes[method] = m
	}
	m[path] = route{
		handler:     h,
		contentType: contentType,
	}
}

// Get registers h for GET requests to path.
func (r *Router) Get(path string, h RequestHandler, contentType string) {
	r.Handle(MethodGet, path, h, contentType)
}

// Post registers h for POST requests to path.
func (r *Router) Post(path string, h RequestHandler, contentType string) {
	r.Handle(MethodPost, path, h, contentType)
}

// Put registers h for PUT requests to path.
func (r *Router) Put(path string, h RequestHandler, contentType string) {
	r.Handle(MethodPut, path, h, contentType)
}

// Delete registers h for DELETE requests to path.
func (r *Router) Delete(path string, h RequestHandler, contentType string) {
	r.Handle(MethodDelete, path, h, contentType)
}

// Patch registers h for PATCH requests to path.
func (r *Router) Patch(path string, h RequestHandler, contentType string) {
	r.Handle(MethodPatch, path, h, contentType)
}

// Options registers h for OPTIONS requests to path.
func (r *Router) Options(path string, h RequestHandler, contentType string) {
	r.Handle(MethodOptions, path, h, contentType)
}

// AddTemplate registers the compiled template t for method.
//
// A template with the same pattern replaces the previously registered
// one, keeping its position.
func (r *Router) AddTemplate(method Method, t *URLTemplate) error {
	r.mustNotBeFrozen()
	if method == MethodUnknown || method >= methodCount {
		panic("BUG: cannot register template for unknown method")
	}
	ts := r.templates[method]
	for i, x := range ts {
		if x.Equal(t) {
			ts[i] = t
			return nil
		}
	}
	r.templates[method] = append(ts, t)
	return nil
}

// HandleTemplate compiles pattern and registers it for method.
//
// It panics on an invalid pattern, so misconfigured routes surface at
// startup.
func (r *Router) HandleTemplate(method Method, pattern string, h RequestHandler, contentType string) {
	t := MustURLTemplate(pattern, h, contentType)
	if err := r.AddTemplate(method, t); err != nil {
		panic(err)
	}
}

// GetTemplate registers a template route for GET requests.
func (r *Router) GetTemplate(pattern string, h RequestHandler, contentType string) {
	r.HandleTemplate(MethodGet, pattern, h, contentType)
}

// PostTemplate registers a template route for POST requests.
func (r *Router) PostTemplate(pattern string, h RequestHandler, contentType string) {
	r.HandleTemplate(MethodPost, pattern, h, contentType)
}

func (r *Router) mustNotBeFrozen() {
	if atomic.LoadInt32(&r.frozen) != 0 {
		panic("BUG: route registered after the server started")
	}
}

func (r *Router) freeze() {
	if r == nil {
		return
	}
	atomic.StoreInt32(&r.frozen, 1)
}

// routeMatch is the outcome of a successful lookup.
type routeMatch struct {
	handler      RequestHandler
	contentType  string
	templateArgs TemplateArgs
}

// lookup resolves method, host and path to a handler.
func (r *Router) lookup(method Method, host, path string) (routeMatch, bool) {
	if r == nil || method >= methodCount {
		return routeMatch{}, false
	}
	if m := r.routes[method]; m != nil {
		if rt, ok := m[path]; ok {
			return routeMatch{handler: rt.handler, contentType: rt.contentType}, true
		}
		if len(host) > 0 {
			if rt, ok := m[host+":"+path]; ok {
				return routeMatch{handler: rt.handler, contentType: rt.contentType}, true
			}
		}
	}
	for _, t := range r.templates[method] {
		if args, ok := t.Extract(path); ok {
			return routeMatch{
				handler:      t.handler,
				contentType:  t.contentType,
				templateArgs: args,
			}, true
		}
	}
	return routeMatch{}, false
}

// hasRoutes returns true if at least one route is registered for method.
func (r *Router) hasRoutes(method Method) bool {
	if r == nil || method >= methodCount {
		return false
	}
	return len(r.routes[method]) > 0 || len(r.templates[method]) > 0
}

// allowed returns the methods, sorted by name, having a route for host
// and path.
func (r *Router) allowed(host, path string) []string {
	var methods []string
	for m := MethodGet; m < methodCount; m++ {
		if _, ok := r.lookup(m, host, path); ok {
			methods = append(methods, m.String())
			if m == MethodGet && !r.hasRoutes(MethodHead) {
				methods = append(methods, MethodHead.String())
			}
		}
	}
	sort.Strings(methods)
	return methods
}

// ErrorHandlerFunc produces the body for an error status. It must return
// Text or Bytes.
type ErrorHandlerFunc func() (Result, error)

// ErrorHandlers maps status codes to the handlers synthesizing their
// response bodies.
//
// The zero value is ready to use. A nil *ErrorHandlers has no handlers.
type ErrorHandlers struct {
	m map[StatusCode]errorHandler
}

type errorHandler struct {
	handler     ErrorHandlerFunc
	contentType string
}

// Set registers h for the given status code.
func (eh *ErrorHandlers) Set(statusCode StatusCode, h ErrorHandlerFunc, contentType string) {
	if eh.m == nil {
		eh.m = make(map[StatusCode]errorHandler)
	}
	eh.m[statusCode] = errorHandler{
		handler:     h,
		contentType: contentType,
	}
}

// Len returns the number of registered handlers.
func (eh *ErrorHandlers) Len() int {
	if eh == nil {
		return 0
	}
	return len(eh.m)
}

func (eh *ErrorHandlers) lookup(statusCode StatusCode) (errorHandler, bool) {
	if eh == nil || eh.m == nil {
		return errorHandler{}, false
	}
	h, ok := eh.m[statusCode]
	if !ok || h.handler == nil {
		return errorHandler{}, false
	}
	return h, true
}

func joinMethods(methods []string) string {
	return strings.Join(methods, ", ")
}
