// Package fetch opens upstream image streams on behalf of the proxy.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
	"golang.org/x/net/publicsuffix"
)

// ErrInvalidURL is returned when the target cannot be requested at all.
var ErrInvalidURL = errors.New("invalid url")

// StatusError reports an upstream response the proxy will not serve.
type StatusError struct {
	StatusCode int
	Location   string
}

func (e *StatusError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("upstream responded %d redirecting to %s", e.StatusCode, e.Location)
	}
	return fmt.Sprintf("upstream responded %d", e.StatusCode)
}

// forwardedHeaders are the only inbound headers passed to the origin.
var forwardedHeaders = []string{"Cookie", "DNT", "Referer", "Range"}

const acceptEncoding = "gzip, deflate, br, zstd"

// Options configures a Client.
type Options struct {
	UserAgent string
	// Timeout bounds connecting and waiting for response headers. The body
	// is bounded only by the caller's context.
	Timeout time.Duration
	// ProxyURL optionally routes upstream traffic through an http, https or
	// socks5 proxy.
	ProxyURL string
	// CookieJar keeps upstream cookies across requests.
	CookieJar bool
}

// Client is shared by all requests. It owns the upstream connection pool and
// cookie jar; callers only issue requests through it.
type Client struct {
	http      *http.Client
	userAgent string
}

func NewClient(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	transport, err := newTransport(opts)
	if err != nil {
		return nil, err
	}

	hc := &http.Client{
		Transport: transport,
		// Redirects are surfaced to the caller so the client can follow them
		// directly instead of through the proxy.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	if opts.CookieJar {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		hc.Jar = jar
	}

	return &Client{http: hc, userAgent: opts.UserAgent}, nil
}

func newTransport(opts Options) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: 30 * time.Second,
	}

	t := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          512,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		// Content-Encoding is negotiated and decoded by Fetch.
		DisableCompression: true,
		// Image hosts with self-signed or expired certificates are still served.
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}

	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing upstream proxy url: %w", err)
		}
		switch proxyURL.Scheme {
		case "socks5", "socks5h":
			var auth *proxy.Auth
			if proxyURL.User != nil {
				password, _ := proxyURL.User.Password()
				auth = &proxy.Auth{User: proxyURL.User.Username(), Password: password}
			}
			socks, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, dialer)
			if err != nil {
				return nil, fmt.Errorf("creating socks5 dialer: %w", err)
			}
			t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				if cd, ok := socks.(proxy.ContextDialer); ok {
					return cd.DialContext(ctx, network, addr)
				}
				return socks.Dial(network, addr)
			}
		case "http", "https":
			t.Proxy = http.ProxyURL(proxyURL)
		default:
			return nil, fmt.Errorf("unsupported upstream proxy scheme %q", proxyURL.Scheme)
		}
	}

	if h2, err := http2.ConfigureTransports(t); err == nil {
		h2.ReadIdleTimeout = 30 * time.Second
		h2.PingTimeout = 15 * time.Second
	}
	return t, nil
}

// Response is an upstream response whose body has been unwrapped from any
// content-encoding. Whoever receives it owns Body and must close it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	// Decoded is true when Body differs from the bytes on the wire, in which
	// case the upstream Content-Length no longer describes Body.
	Decoded bool
}

// Fetch requests rawURL with the whitelisted subset of inbound headers.
// Responses with status >= 300 are returned as *StatusError with the body
// already closed. A request that cannot be built returns ErrInvalidURL.
func (c *Client) Fetch(ctx context.Context, rawURL string, inbound http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if req.URL.Host == "" || (req.URL.Scheme != "http" && req.URL.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	for _, name := range forwardedHeaders {
		if v := inbound.Values(name); len(v) > 0 {
			req.Header[http.CanonicalHeaderKey(name)] = append([]string(nil), v...)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("Range") != "" {
		req.Header.Set("Accept-Encoding", "identity")
	} else {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting upstream: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	encoding := resp.Header.Get("Content-Encoding")
	body, err := decodeBody(resp.Body, encoding)
	if err != nil {
		return nil, fmt.Errorf("decoding upstream body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Decoded:    body != resp.Body,
	}, nil
}
