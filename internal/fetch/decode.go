package fetch

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// zstdDecoderPool reuses decoders, which are expensive to create.
var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return decoder
	},
}

// readCloser pairs a decoding reader with the closers of everything under it.
type readCloser struct {
	io.Reader
	closers []func() error
}

func (c *readCloser) Close() error {
	var firstErr error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// decodeBody wraps body according to contentEncoding. Supports gzip,
// deflate, br and zstd; identity and unknown codings return body unchanged.
// Only the last listed coding is unwrapped, matching what origins send in
// practice.
func decodeBody(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	if contentEncoding == "" {
		return body, nil
	}
	codings := strings.Split(contentEncoding, ",")
	coding := strings.ToLower(strings.TrimSpace(codings[len(codings)-1]))

	switch coding {
	case "gzip", "x-gzip":
		gr, err := gzip.NewReader(body)
		if err != nil {
			body.Close()
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		return &readCloser{Reader: gr, closers: []func() error{gr.Close, body.Close}}, nil
	case "deflate":
		return newDeflateReader(body)
	case "br":
		return &readCloser{Reader: brotli.NewReader(body), closers: []func() error{body.Close}}, nil
	case "zstd":
		decoder := zstdDecoderPool.Get().(*zstd.Decoder)
		if err := decoder.Reset(body); err != nil {
			zstdDecoderPool.Put(decoder)
			body.Close()
			return nil, fmt.Errorf("resetting zstd decoder: %w", err)
		}
		release := func() error {
			// Detach from body before returning to the pool.
			_ = decoder.Reset(nil)
			zstdDecoderPool.Put(decoder)
			return nil
		}
		return &readCloser{Reader: decoder, closers: []func() error{release, body.Close}}, nil
	default:
		return body, nil
	}
}

// newDeflateReader unwraps "deflate", which is zlib-framed DEFLATE. Some
// origins send raw DEFLATE instead, so the zlib header is checked first.
func newDeflateReader(body io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(body)
	header, _ := br.Peek(2)
	if !isZlibHeader(header) {
		fr := flate.NewReader(br)
		return &readCloser{Reader: fr, closers: []func() error{fr.Close, body.Close}}, nil
	}
	zr, err := zlib.NewReader(br)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	return &readCloser{Reader: zr, closers: []func() error{zr.Close, body.Close}}, nil
}

// isZlibHeader reports whether b starts with a zlib CMF/FLG pair using the
// DEFLATE method (RFC 1950).
func isZlibHeader(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}
