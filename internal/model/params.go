package model

// OutputFormat is the only format the proxy encodes to.
const OutputFormat = "jpeg"

// UnknownSize marks an origin size that upstream did not declare.
const UnknownSize int64 = -1

// RequestParameters describes one proxied image request. It is created by the
// front-end for a single request and never shared between requests.
type RequestParameters struct {
	URL          string
	Quality      int
	Grayscale    bool
	OutputFormat string

	// Set once upstream response headers arrive.
	OriginSize int64
	OriginType string
}
