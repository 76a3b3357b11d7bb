package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/leca/bandwidth-proxy/internal/api"
	"github.com/leca/bandwidth-proxy/internal/fetch"
	"github.com/leca/bandwidth-proxy/internal/model"
)

// Proxy handles GET /?url=... -- fetches the target image and either
// transcodes it, streams it through untouched, or redirects the client to it.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	params := api.GetParams(r.Context())
	if params == nil {
		api.InvalidURL(w)
		return
	}

	x := newExchange(w, r, params)
	defer h.record(x)

	resp, err := h.Fetcher.Fetch(r.Context(), params.URL, r.Header)
	if err != nil {
		if errors.Is(err, fetch.ErrInvalidURL) {
			x.reject()
			return
		}
		x.fail(err)
		return
	}
	defer resp.Body.Close()

	params.OriginType = resp.Header.Get("Content-Type")
	params.OriginSize = parseContentLength(resp.Header.Get("Content-Length"))
	x.outcome.OriginSize = params.OriginSize

	if h.Policy.ShouldCompress(params, resp.StatusCode) {
		h.compress(x, resp)
		return
	}
	h.bypass(x, resp)
}

// compress transcodes the whole body before writing anything, so every
// failure can still be answered with a redirect.
func (h *Handler) compress(x *exchange, resp *fetch.Response) {
	res, err := h.Transcoder.Transcode(x.r.Context(), x.params, resp.Body)
	if err != nil {
		x.fail(fmt.Errorf("transcoding: %w", err))
		return
	}

	original := x.params.OriginSize
	if original == model.UnknownSize {
		original = res.InputBytes
	}
	saved := original - res.Size()

	hdr := x.w.Header()
	projectHeaders(hdr, resp, modeTranscode)
	hdr.Set("Content-Type", "image/"+res.Format)
	hdr.Set("Content-Length", formatSize(res.Size()))
	hdr.Set(headerOriginalSize, formatSize(original))
	hdr.Set(headerBytesSaved, formatSize(saved))

	x.outcome.OriginSize = original
	x.outcome.BytesSaved = saved
	x.commit(model.OutcomeCompressed, http.StatusOK)

	n, err := x.w.Write(res.Data)
	x.outcome.SentSize = int64(n)
	if err != nil {
		x.abort(fmt.Errorf("writing transcoded image: %w", err))
	}
}

// bypass streams the upstream body to the client unchanged.
func (h *Handler) bypass(x *exchange, resp *fetch.Response) {
	projectHeaders(x.w.Header(), resp, modeBypass)
	x.commit(model.OutcomeBypassed, resp.StatusCode)

	n, err := io.Copy(x.w, resp.Body)
	x.outcome.SentSize = n
	if err != nil {
		x.abort(fmt.Errorf("streaming upstream body: %w", err))
	}
}

// record logs the outcome and appends it to the savings ledger when one is
// configured. It runs deferred, including while an abort unwinds.
func (h *Handler) record(x *exchange) {
	if !x.done {
		return
	}
	x.outcome.Duration = time.Since(x.start)
	x.logger().Info("proxied",
		"kind", x.outcome.Kind,
		"origin_size", x.outcome.OriginSize,
		"sent_size", x.outcome.SentSize,
		"bytes_saved", x.outcome.BytesSaved,
		"duration", x.outcome.Duration,
	)
	if h.DB == nil {
		return
	}
	if err := h.DB.RecordOutcome(&x.outcome); err != nil {
		slog.Error("failed to record outcome", "error", err)
	}
}

// parseContentLength returns model.UnknownSize for a missing or malformed
// value.
func parseContentLength(v string) int64 {
	if v == "" {
		return model.UnknownSize
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return model.UnknownSize
	}
	return n
}
