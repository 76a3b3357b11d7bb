//go:build conformance

package conformance

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
)

// client never follows the proxy's redirects.
var client = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

// proxyURL builds the proxy request URL for target plus extra query text.
func proxyURL(target, extra string) string {
	return strings.TrimRight(baseURL, "/") + "/?url=" + url.QueryEscape(target) + extra
}

// doRequest performs an HTTP request and returns the response.
func doRequest(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// doGet performs a GET and returns the response with its body fully read.
func doGet(t *testing.T, rawURL string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	resp := doRequest(t, req)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

// doJSON performs an authenticated GET and returns the decoded JSON as map[string]any.
func doJSON(t *testing.T, rawURL string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if statsToken != "" {
		req.Header.Set("Authorization", "Bearer "+statsToken)
	}
	resp := doRequest(t, req)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal JSON: %v\nbody: %s", err, string(data))
	}
	return resp.StatusCode, raw
}

// startOrigin serves body under any path with the given content type.
func startOrigin(t *testing.T, contentType string, body []byte) *httptest.Server {
	t.Helper()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write(body)
	}))
	t.Cleanup(origin.Close)
	return origin
}

// noisePNG returns an incompressible PNG well above the transparent-image threshold.
func noisePNG(t *testing.T) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(11))
	img := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	for y := range 300 {
		for x := range 300 {
			img.Set(x, y, color.NRGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// assertEnvelopeShape validates the JSON envelope used by the stats endpoints.
func assertEnvelopeShape(t *testing.T, raw map[string]any) {
	t.Helper()

	success, ok := raw["success"]
	if !ok {
		t.Error("envelope missing 'success' field")
	} else if _, ok := success.(bool); !ok {
		t.Errorf("'success' should be bool, got %T", success)
	}

	for _, field := range []string{"errors"} {
		v, ok := raw[field]
		if !ok {
			t.Errorf("envelope missing %q field", field)
			continue
		}
		arr, ok := v.([]any)
		if !ok {
			t.Errorf("%q should be array, got %T", field, v)
			continue
		}
		for i, e := range arr {
			obj, ok := e.(map[string]any)
			if !ok {
				t.Errorf("%s[%d] should be object, got %T", field, i, e)
				continue
			}
			if _, ok := obj["code"]; !ok {
				t.Errorf("%s[%d] missing 'code'", field, i)
			}
			if _, ok := obj["message"]; !ok {
				t.Errorf("%s[%d] missing 'message'", field, i)
			}
		}
	}
}

// assertField validates a field exists in an object and has the expected Go type.
// Returns the typed value.
func assertField[T any](t *testing.T, obj map[string]any, field string) T {
	t.Helper()
	val, ok := obj[field]
	if !ok {
		var zero T
		t.Errorf("missing field %q", field)
		return zero
	}
	typed, ok := val.(T)
	if !ok {
		var zero T
		t.Errorf("field %q: expected %T, got %T (%v)", field, zero, val, val)
		return zero
	}
	return typed
}

// assertHeader checks a response header value.
func assertHeader(t *testing.T, resp *http.Response, name, expected string) {
	t.Helper()
	if got := resp.Header.Get(name); got != expected {
		t.Errorf("header %s: expected %q, got %q", name, expected, got)
	}
}
