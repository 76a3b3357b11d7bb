package api

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/leca/bandwidth-proxy/internal/model"
)

// ErrInvalidURL is returned by ParseParams when the target URL is missing,
// unparseable or not http(s).
var ErrInvalidURL = errors.New("invalid url")

// legacyPrefix matches the wrapper some mobile carriers put in front of the
// real image address, e.g. "http://1.1.1.1/bmi/https://host/a.png".
var legacyPrefix = regexp.MustCompile(`(?i)^http://1\.1\.\d\.\d/bmi/(https?://)?`)

// ParseParams turns the proxy query string into RequestParameters.
//
// Query keys:
//
//	url   target image, required
//	l     quality 0..100, takes precedence over jpeg
//	jpeg  quality, honoured only when greater than 1
//	bw    grayscale flag ("1", "true", ...)
func ParseParams(q url.Values, defaultQuality int) (*model.RequestParameters, error) {
	target, err := normalizeURL(q["url"])
	if err != nil {
		return nil, err
	}

	grayscale, _ := strconv.ParseBool(q.Get("bw"))

	return &model.RequestParameters{
		URL:          target,
		Quality:      parseQuality(q, defaultQuality),
		Grayscale:    grayscale,
		OutputFormat: model.OutputFormat,
		OriginSize:   model.UnknownSize,
	}, nil
}

func normalizeURL(values []string) (string, error) {
	// An unescaped "&url=" inside the target splits it into several values.
	raw := strings.TrimSpace(strings.Join(values, "&url="))
	if raw == "" {
		return "", ErrInvalidURL
	}

	if m := legacyPrefix.FindStringSubmatch(raw); m != nil {
		scheme := strings.ToLower(m[1])
		if scheme == "" {
			scheme = "http://"
		}
		raw = scheme + raw[len(m[0]):]
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	return u.String(), nil
}

func parseQuality(q url.Values, defaultQuality int) int {
	if l := q.Get("l"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			return clampQuality(v)
		}
	}
	if j := q.Get("jpeg"); j != "" {
		if v, err := strconv.Atoi(j); err == nil && v > 1 {
			return clampQuality(v)
		}
	}
	return defaultQuality
}

func clampQuality(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
