/*
Package tinyhttp provides a small HTTP/1.x server with explicit request
parsing, a method-aware router and a buffered response model.

Tinyhttp provides the following features:

  - Request heads and Content-Length bodies are read from any net.Conn.
    Chunked request bodies are rejected.
  - Keep-alive connections and request pipelining.
  - Routes are registered per method, either as exact paths, host-bound
    paths ("example.com:/index") or URL templates like
    "/items/{id:int}".
  - Handlers return a Result: Text, Bytes, *PartialContent or *Redirect.
    Range requests are served from io.ReaderAt.
  - Error responses are synthesized by customizable ErrorHandlers.
  - Optional brotli, zstd and gzip response compression.
  - Anti-DoS limits: concurrent connections, connections per IP, request
    head size, request body size, read and write timeouts.
  - Structured logging with zerolog and optional OpenTelemetry spans.
  - An event-loop transport based on gnet, see Server.ListenAndServeGnet.

A minimal server:

	r := tinyhttp.NewRouter()
	r.Get("/hello", func(ctx *tinyhttp.RequestCtx) (tinyhttp.Result, error) {
		return tinyhttp.Text("hello " + ctx.QueryArgs.Get("name")), nil
	}, "")
	s := &tinyhttp.Server{Router: r}
	log.Fatal(s.ListenAndServe(":8080"))
*/
package tinyhttp
