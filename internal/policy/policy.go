// Package policy decides whether an upstream image is worth transcoding.
package policy

import (
	"net/http"
	"strings"

	"github.com/leca/bandwidth-proxy/internal/model"
)

// Policy holds the thresholds used by ShouldCompress. The zero value never
// blocks on size and treats any quality as worth re-encoding.
//
// A JPEG origin counts as already optimal only when the requested quality is
// at least AlreadyOptimalQuality and grayscale is off. A lower quality or a
// grayscale request still re-encodes it, since that is what shrinks it.
type Policy struct {
	// MinCompressSize is the smallest declared origin size worth transcoding.
	MinCompressSize int64
	// MinTransparentCompressSize applies to PNG and GIF origins, which lose
	// transparency when flattened to JPEG.
	MinTransparentCompressSize int64
	// AlreadyOptimalQuality is the requested quality at or above which a JPEG
	// origin is passed through untouched. Zero disables the check.
	AlreadyOptimalQuality int
}

// ShouldCompress reports whether the upstream response described by p and
// status should be transcoded. It has no side effects.
func (pol Policy) ShouldCompress(p *model.RequestParameters, status int) bool {
	mediaType := mediaType(p.OriginType)

	if !strings.HasPrefix(mediaType, "image/") {
		return false
	}
	if mediaType == "image/svg+xml" {
		return false
	}
	if status == http.StatusPartialContent {
		return false
	}
	if p.Quality == 0 && !p.Grayscale {
		return false
	}
	if isOutputFormat(mediaType) && !p.Grayscale &&
		pol.AlreadyOptimalQuality > 0 && p.Quality >= pol.AlreadyOptimalQuality {
		return false
	}

	if p.OriginSize == model.UnknownSize {
		return true
	}
	if p.OriginSize == 0 || p.OriginSize < pol.MinCompressSize {
		return false
	}
	if isTransparentCapable(mediaType) && p.OriginSize < pol.MinTransparentCompressSize {
		return false
	}
	return true
}

// mediaType lowercases the content type and strips parameters.
func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func isOutputFormat(mediaType string) bool {
	switch mediaType {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return true
	}
	return false
}

func isTransparentCapable(mediaType string) bool {
	return mediaType == "image/png" || mediaType == "image/gif"
}
