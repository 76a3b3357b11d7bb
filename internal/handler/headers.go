package handler

import (
	"net/http"

	"github.com/leca/bandwidth-proxy/internal/fetch"
)

type projectMode int

const (
	modeBypass projectMode = iota
	modeTranscode
)

const (
	headerBypass       = "X-Proxy-Bypass"
	headerOriginalSize = "X-Original-Size"
	headerBytesSaved   = "X-Bytes-Saved"
)

// copiedHeader is one entry of the upstream whitelist.
type copiedHeader struct {
	name string
	// bypassOnly headers describe the upstream bytes and are meaningless for
	// a transcoded body.
	bypassOnly bool
	// wireBound headers describe the encoded bytes on the wire and are
	// dropped when the body was decoded.
	wireBound bool
}

var copiedHeaders = []copiedHeader{
	{name: "Accept-Ranges", bypassOnly: true, wireBound: true},
	{name: "Content-Type"},
	{name: "Content-Length", wireBound: true},
	{name: "Content-Range", bypassOnly: true, wireBound: true},
}

// fixedHeaders are set on every proxied response.
var fixedHeaders = []struct{ name, value string }{
	{"Content-Encoding", "identity"},
	{"Access-Control-Allow-Origin", "*"},
	{"Cross-Origin-Resource-Policy", "cross-origin"},
	{"Cross-Origin-Embedder-Policy", "unsafe-none"},
}

// projectHeaders copies the whitelisted upstream headers into dst and adds
// the fixed ones. In transcode mode the caller overwrites Content-Type and
// Content-Length with the encoded values.
func projectHeaders(dst http.Header, upstream *fetch.Response, mode projectMode) {
	for _, h := range copiedHeaders {
		if mode == modeTranscode && h.bypassOnly {
			continue
		}
		if upstream.Decoded && h.wireBound {
			continue
		}
		if v := upstream.Header.Get(h.name); v != "" {
			dst.Set(h.name, v)
		}
	}
	for _, h := range fixedHeaders {
		dst.Set(h.name, h.value)
	}
	if mode == modeBypass {
		dst.Set(headerBypass, "1")
	}
}

// redirectClearedHeaders are removed before answering with a redirect.
func redirectClearedHeaders() []string {
	names := []string{"Cache-Control", "Expires", "ETag", "Last-Modified", "Content-Encoding",
		headerBypass, headerOriginalSize, headerBytesSaved}
	for _, h := range copiedHeaders {
		names = append(names, h.name)
	}
	return names
}
