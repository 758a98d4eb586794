package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// minCompressBytes is the smallest body worth compressing.
const minCompressBytes = 512

type encoder interface {
	io.WriteCloser
	Reset(io.Writer)
}

var (
	gzipPool = sync.Pool{New: func() interface{} {
		return gzip.NewWriter(io.Discard)
	}}
	brotliPool = sync.Pool{New: func() interface{} {
		return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression)
	}}
)

// negotiateEncoding picks br over gzip when the client accepts both.
// Codings with q=0 are refused.
func negotiateEncoding(acceptEncoding string) string {
	var gz bool
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "br":
			return "br"
		case "gzip":
			gz = true
		}
	}
	if gz {
		return "gzip"
	}
	return ""
}

// compressWriter buffers the first minCompressBytes so small bodies go out unencoded.
type compressWriter struct {
	http.ResponseWriter
	encoding string
	pool     *sync.Pool
	enc      encoder
	buf      []byte
	status   int
	decided  bool
}

func (w *compressWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.decided {
		if w.enc != nil {
			return w.enc.Write(b)
		}
		return w.ResponseWriter.Write(b)
	}
	w.buf = append(w.buf, b...)
	if len(w.buf) >= minCompressBytes {
		if err := w.decide(true); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

func (w *compressWriter) decide(compress bool) error {
	w.decided = true
	h := w.Header()
	if compress && h.Get("Content-Encoding") == "" && bodyAllowed(w.status) {
		h.Set("Content-Encoding", w.encoding)
		h.Del("Content-Length")
		w.enc = w.pool.Get().(encoder)
		w.enc.Reset(w.ResponseWriter)
	}
	w.ResponseWriter.WriteHeader(w.status)
	if len(w.buf) == 0 {
		return nil
	}
	var err error
	if w.enc != nil {
		_, err = w.enc.Write(w.buf)
	} else {
		_, err = w.ResponseWriter.Write(w.buf)
	}
	w.buf = nil
	return err
}

func (w *compressWriter) finish() {
	if !w.decided {
		if w.status == 0 {
			w.status = http.StatusOK
		}
		_ = w.decide(false)
	}
	if w.enc != nil {
		_ = w.enc.Close()
		w.enc.Reset(io.Discard)
		w.pool.Put(w.enc)
		w.enc = nil
	}
}

func bodyAllowed(status int) bool {
	return status >= 200 && status != http.StatusNoContent && status != http.StatusNotModified
}

// Compress encodes responses with brotli or gzip, whichever the client prefers
// (brotli when both are accepted). Bodies under minCompressBytes are sent as is.
func Compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")

		encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
		if encoding == "" || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		pool := &gzipPool
		if encoding == "br" {
			pool = &brotliPool
		}
		cw := &compressWriter{ResponseWriter: w, encoding: encoding, pool: pool}
		defer cw.finish()
		next.ServeHTTP(cw, r)
	})
}
