package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/leca/bandwidth-proxy/internal/api"
	"github.com/leca/bandwidth-proxy/internal/model"
)

// exchange tracks one proxied request. Exactly one terminal action (reject,
// redirect, commit) takes effect; later ones are ignored.
type exchange struct {
	w       http.ResponseWriter
	r       *http.Request
	params  *model.RequestParameters
	start   time.Time
	done    bool
	outcome model.Outcome
}

func newExchange(w http.ResponseWriter, r *http.Request, params *model.RequestParameters) *exchange {
	x := &exchange{w: w, r: r, params: params, start: time.Now()}
	if u, err := url.Parse(params.URL); err == nil {
		x.outcome.Host = u.Hostname()
	}
	x.outcome.OriginSize = model.UnknownSize
	return x
}

func (x *exchange) logger() *slog.Logger {
	return slog.With("url", x.params.URL, "host", x.outcome.Host)
}

// redirect sends the client to the original URL so it can load the image
// directly.
func (x *exchange) redirect(cause error) {
	if x.done {
		x.logger().Debug("redirect suppressed, response already finalized", "error", cause)
		return
	}
	x.done = true
	x.outcome.Kind = model.OutcomeRedirected

	h := x.w.Header()
	for _, name := range redirectClearedHeaders() {
		h.Del(name)
	}
	for name := range h {
		if strings.HasPrefix(strings.ToLower(name), "x-") {
			h.Del(name)
		}
	}
	h.Set("Location", x.params.URL)
	h.Set("Content-Length", "0")
	x.w.WriteHeader(http.StatusFound)

	x.logger().Info("redirecting to origin", "error", cause)
}

// reject answers 400 for a target that cannot be requested.
func (x *exchange) reject() {
	if x.done {
		return
	}
	x.done = true
	x.outcome.Kind = model.OutcomeRejected
	api.InvalidURL(x.w)
}

// commit writes the status line. Nothing can be undone afterwards.
func (x *exchange) commit(kind model.OutcomeKind, status int) {
	x.done = true
	x.outcome.Kind = kind
	x.w.WriteHeader(status)
}

// fail redirects unless the client already went away, in which case
// nothing is written.
func (x *exchange) fail(cause error) {
	if !x.done && x.r.Context().Err() != nil {
		x.done = true
		x.outcome.Kind = model.OutcomeAborted
		x.logger().Debug("client gone", "error", cause)
		return
	}
	x.redirect(cause)
}

// abort tears down a connection whose response was already committed.
func (x *exchange) abort(cause error) {
	x.outcome.Kind = model.OutcomeAborted
	x.logger().Warn("aborting response", "error", cause)
	panic(http.ErrAbortHandler)
}

func formatSize(n int64) string {
	return strconv.FormatInt(n, 10)
}
