// tinyhttpd serves a few demo routes with tinyhttp.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinyhttp/tinyhttp"
)

var (
	addr       = flag.String("addr", tinyhttp.DefaultAddr, "TCP address to listen to")
	configFile = flag.String("config", "", "Path to YAML config. Flags given explicitly override it")
	reusePort  = flag.Bool("reuseport", false, "Enables SO_REUSEPORT on the listener")
	useGnet    = flag.Bool("gnet", false, "Serves with the gnet event-loop transport")
	compress   = flag.Bool("compress", false, "Enables transparent response compression")
	debug      = flag.Bool("debug", false, "Enables debug logging")
	file       = flag.String("file", "", "File served with range support at /file")
)

func main() {
	flag.Parse()

	cfg := tinyhttp.DefaultConfig()
	if len(*configFile) > 0 {
		var err error
		if cfg, err = tinyhttp.LoadConfig(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", err)
			os.Exit(1)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "reuseport":
			cfg.ReusePort = *reusePort
		case "gnet":
			cfg.Gnet = *useGnet
		case "compress":
			cfg.Compress = *compress
		case "debug":
			if *debug {
				cfg.LogLevel = zerolog.DebugLevel.String()
			}
		}
	})

	s := &tinyhttp.Server{
		Router:        newRouter(),
		ErrorHandlers: newErrorHandlers(),
	}
	cfg.Apply(s)
	logger := s.Logger

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Bool("gnet", cfg.Gnet).Msg("starting tinyhttpd")
		if cfg.Gnet {
			errCh <- s.ListenAndServeGnet(cfg.Addr)
		} else {
			errCh <- s.ListenAndServe(cfg.Addr)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("error in ListenAndServe")
		}
		return
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var err error
	if cfg.Gnet {
		err = tinyhttp.StopGnet(ctx, cfg.Addr)
	} else {
		err = s.Shutdown(ctx)
	}
	if err != nil {
		logger.Error().Err(err).Msg("cannot shut down gracefully")
		os.Exit(1)
	}
}

func newRouter() *tinyhttp.Router {
	r := tinyhttp.NewRouter()

	r.Get("/", func(ctx *tinyhttp.RequestCtx) (tinyhttp.Result, error) {
		return tinyhttp.NewRedirect("/hello"), nil
	}, "")

	r.Get("/hello", func(ctx *tinyhttp.RequestCtx) (tinyhttp.Result, error) {
		name := ctx.QueryArgs.Get("name")
		if len(name) == 0 {
			name = "world"
		}
		return tinyhttp.Text(fmt.Sprintf("hello %s\n", name)), nil
	}, "")

	r.GetTemplate("/items/{id:int}", func(ctx *tinyhttp.RequestCtx) (tinyhttp.Result, error) {
		id, _ := ctx.TemplateArgs.Int("id")
		if id == 0 {
			return nil, tinyhttp.NewStatusError(tinyhttp.StatusBadRequest, "item ids start at 1")
		}
		return tinyhttp.Text(fmt.Sprintf(`{"id":%d,"name":"item %d"}`, id, id)), nil
	}, "application/json")

	r.Post("/echo", func(ctx *tinyhttp.RequestCtx) (tinyhttp.Result, error) {
		if ctx.Flags.Has(tinyhttp.FlagURLEncoded) {
			return tinyhttp.Text(ctx.PostArgs.String()), nil
		}
		return tinyhttp.Bytes(append([]byte(nil), ctx.PostBody...)), nil
	}, "")

	content, err := openContent(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
	r.Get("/file", func(ctx *tinyhttp.RequestCtx) (tinyhttp.Result, error) {
		return content, nil
	}, "")

	return r
}

// openContent returns the resource served at /file. The file stays open
// for the process lifetime.
func openContent(path string) (*tinyhttp.PartialContent, error) {
	if len(path) == 0 {
		return tinyhttp.PartialBytes([]byte(strings.Repeat("0123456789", 1000))), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return tinyhttp.NewPartialContent(f, fi.Size()), nil
}

func newErrorHandlers() *tinyhttp.ErrorHandlers {
	eh := &tinyhttp.ErrorHandlers{}
	eh.Set(tinyhttp.StatusNotFound, func() (tinyhttp.Result, error) {
		return tinyhttp.Text("nothing to see here\n"), nil
	}, "")
	return eh
}
