package tinyhttp

import (
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
)

// Supported content codings in preference order.
const (
	EncodingBrotli = "br"
	EncodingZstd   = "zstd"
	EncodingGzip   = "gzip"
)

// Bodies shorter than minCompressLen are sent as is.
const minCompressLen = 200

var (
	gzipWriterPool   sync.Pool
	zstdWriterPool   sync.Pool
	brotliWriterPool sync.Pool
)

type compressWriter interface {
	io.WriteCloser
	Reset(w io.Writer)
}

func acquireCompressWriter(w io.Writer, encoding string) (compressWriter, error) {
	var p *sync.Pool
	switch encoding {
	case EncodingBrotli:
		p = &brotliWriterPool
	case EncodingZstd:
		p = &zstdWriterPool
	case EncodingGzip:
		p = &gzipWriterPool
	default:
		return nil, errors.Errorf("unsupported content coding %q", encoding)
	}
	if v := p.Get(); v != nil {
		cw := v.(compressWriter)
		cw.Reset(w)
		return cw, nil
	}
	switch encoding {
	case EncodingBrotli:
		return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
	case EncodingZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, errors.Wrap(err, "cannot create zstd encoder")
		}
		return zw, nil
	default:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	}
}

func releaseCompressWriter(cw compressWriter, encoding string) {
	cw.Reset(nil)
	switch encoding {
	case EncodingBrotli:
		brotliWriterPool.Put(cw)
	case EncodingZstd:
		zstdWriterPool.Put(cw)
	case EncodingGzip:
		gzipWriterPool.Put(cw)
	}
}

// AppendCompressed appends src compressed with the given content coding
// to dst and returns the extended dst.
func AppendCompressed(dst, src []byte, encoding string) ([]byte, error) {
	w := &byteSliceWriter{b: dst}
	cw, err := acquireCompressWriter(w, encoding)
	if err != nil {
		return dst, err
	}
	if _, err = cw.Write(src); err == nil {
		err = cw.Close()
	}
	releaseCompressWriter(cw, encoding)
	if err != nil {
		return dst, errors.Wrapf(err, "cannot compress %d bytes with %s", len(src), encoding)
	}
	return w.b, nil
}

type byteSliceWriter struct {
	b []byte
}

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

var supportedEncodings = [...]string{EncodingBrotli, EncodingZstd, EncodingGzip}

// negotiateEncoding picks the coding with the highest q-value among the
// supported ones. Ties go to the preference order br, zstd, gzip. Codings
// with q=0 are refused, and "*" applies to the codings not listed.
//
// Each item of acceptEncoding is a raw comma separated list, e.g.
// "gzip;q=0.5, br".
func negotiateEncoding(acceptEncoding []string) string {
	var qs [len(supportedEncodings)]float64
	for i := range qs {
		qs[i] = -1
	}
	wildcard := -1.0
	for _, v := range acceptEncoding {
		for _, item := range strings.Split(v, ",") {
			name, params, _ := strings.Cut(item, ";")
			name = strings.TrimSpace(name)
			q := parseQValue(params)
			if name == "*" {
				wildcard = q
				continue
			}
			for i, enc := range supportedEncodings {
				if caseInsensitiveEqual(name, enc) {
					qs[i] = q
				}
			}
		}
	}

	best, bestQ := "", 0.0
	for i, enc := range supportedEncodings {
		q := qs[i]
		if q < 0 {
			q = wildcard
		}
		if q > bestQ {
			best, bestQ = enc, q
		}
	}
	return best
}

// parseQValue returns the q parameter found in params, 1 if there is none
// and 0 if it is malformed.
func parseQValue(params string) float64 {
	q := 1.0
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(p, "=")
		if !ok || !caseInsensitiveEqual(strings.TrimSpace(k), "q") {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 {
			return 0
		}
		if f > 1 {
			f = 1
		}
		q = f
	}
	return q
}

// acceptEncodings returns the raw Accept-Encoding values of all the
// request lines. The header model splits values on ';', so they are
// joined back to keep the q parameters attached to their codings.
func acceptEncodings(h *Header) []string {
	var values []string
	for i := range h.lines {
		l := &h.lines[i]
		if l.key == HeaderAcceptEncoding {
			values = append(values, strings.Join(l.values, ";"))
		}
	}
	return values
}

func isCompressibleContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		strings.Contains(contentType, "json") ||
		strings.Contains(contentType, "javascript") ||
		strings.Contains(contentType, "xml")
}

// compressResponse compresses a 200 response body if the client accepts
// a supported coding.
func compressResponse(ctx *RequestCtx) error {
	resp := ctx.Response
	if resp.StatusCode() != StatusOK || resp.BodyLen() < minCompressLen {
		return nil
	}
	if resp.Header.Contains(HeaderContentEncoding) || resp.Header.Contains(HeaderContentRange) {
		return nil
	}
	ct := resp.Header.Peek(HeaderContentType)
	if len(ct) == 0 || !isCompressibleContentType(ct[0]) {
		return nil
	}
	enc := negotiateEncoding(acceptEncodings(&ctx.Header))
	if len(enc) == 0 {
		return nil
	}

	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	var err error
	if b.B, err = AppendCompressed(b.B, resp.Body(), enc); err != nil {
		return err
	}
	resp.SetBody(b.B)
	resp.Header.Replace(HeaderContentEncoding, enc)
	resp.Header.Set(HeaderVary, "Accept-Encoding")
	return nil
}
