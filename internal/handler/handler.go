package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/leca/bandwidth-proxy/internal/config"
	"github.com/leca/bandwidth-proxy/internal/database"
	"github.com/leca/bandwidth-proxy/internal/fetch"
	"github.com/leca/bandwidth-proxy/internal/imageproc"
	"github.com/leca/bandwidth-proxy/internal/model"
	"github.com/leca/bandwidth-proxy/internal/policy"
)

// Fetcher opens upstream responses. *fetch.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, inbound http.Header) (*fetch.Response, error)
}

// Transcoder re-encodes image bodies. *imageproc.Transcoder implements it.
type Transcoder interface {
	Transcode(ctx context.Context, p *model.RequestParameters, src io.Reader) (*imageproc.Result, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	// DB is optional; without it outcomes are only logged.
	DB         database.Database
	Config     *config.Config
	Fetcher    Fetcher
	Transcoder Transcoder
	Policy     policy.Policy
}
