package imageproc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/disintegration/imaging"
	"github.com/leca/bandwidth-proxy/internal/model"
	"golang.org/x/sync/semaphore"

	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported or unrecognized image format")
	ErrInputTooLarge     = errors.New("image input exceeds size limit")
)

// sniffLen is the number of leading bytes DetectFormat needs.
const sniffLen = 12

// DetectFormat inspects the raw bytes and returns the image format:
// "jpeg", "png", "gif", "webp", "bmp", "tiff", or "" if unknown.
func DetectFormat(data []byte) string {
	// JPEG: starts with FF D8 FF
	if len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "jpeg"
	}
	// PNG: starts with 89 50 4E 47 0D 0A 1A 0A
	if len(data) >= 8 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 &&
		data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A {
		return "png"
	}
	// GIF: starts with GIF87a or GIF89a
	if len(data) >= 6 && data[0] == 'G' && data[1] == 'I' && data[2] == 'F' {
		return "gif"
	}
	// WebP: starts with RIFF....WEBP
	if len(data) >= 12 && data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return "webp"
	}
	// BMP: starts with BM
	if len(data) >= 2 && data[0] == 'B' && data[1] == 'M' {
		return "bmp"
	}
	// TIFF: little endian II*\0 or big endian MM\0*
	if len(data) >= 4 && ((data[0] == 'I' && data[1] == 'I' && data[2] == 0x2A && data[3] == 0x00) ||
		(data[0] == 'M' && data[1] == 'M' && data[2] == 0x00 && data[3] == 0x2A)) {
		return "tiff"
	}
	return ""
}

// Options configures a Transcoder.
type Options struct {
	// DefaultQuality is used when a request asks for quality 0.
	DefaultQuality int
	// MaxInputBytes caps the upstream bytes read; 0 means unlimited.
	MaxInputBytes int64
	// MaxConcurrent caps simultaneous transcodes; 0 means unlimited.
	MaxConcurrent int
}

// Transcoder re-encodes images to JPEG. It keeps no per-image state between
// calls and is safe for concurrent use.
type Transcoder struct {
	defaultQuality int
	maxInputBytes  int64
	slots          *semaphore.Weighted
}

func NewTranscoder(opts Options) *Transcoder {
	t := &Transcoder{
		defaultQuality: opts.DefaultQuality,
		maxInputBytes:  opts.MaxInputBytes,
	}
	if t.defaultQuality <= 0 || t.defaultQuality > 100 {
		t.defaultQuality = 40
	}
	if opts.MaxConcurrent > 0 {
		t.slots = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return t
}

// Result is a fully encoded image.
type Result struct {
	Data         []byte
	Format       string
	SourceFormat string
	Width        int
	Height       int
	// InputBytes is the number of source bytes consumed, including any
	// trailing bytes after the image data.
	InputBytes int64
}

// Size returns the encoded byte length.
func (r *Result) Size() int64 {
	return int64(len(r.Data))
}

// Transcode decodes src, applies the requested transformation and encodes it
// to JPEG. The whole output is produced before returning, so a failure at any
// point leaves nothing written for the caller to undo.
func (t *Transcoder) Transcode(ctx context.Context, p *model.RequestParameters, src io.Reader) (*Result, error) {
	if t.slots != nil {
		if err := t.slots.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("waiting for transcode slot: %w", err)
		}
		defer t.slots.Release(1)
	}

	counter := &countingReader{r: src, limit: t.maxInputBytes}
	br := bufio.NewReader(counter)

	head, err := br.Peek(sniffLen)
	if counter.exceeded {
		return nil, ErrInputTooLarge
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	format := DetectFormat(head)
	if format == "" {
		return nil, ErrUnsupportedFormat
	}

	img, err := imaging.Decode(br, imaging.AutoOrientation(true))
	if counter.exceeded {
		return nil, ErrInputTooLarge
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s image: %w", format, err)
	}

	// Consume whatever follows the image data so InputBytes reflects the
	// full upstream body.
	if _, err := io.Copy(io.Discard, br); err != nil {
		if counter.exceeded {
			return nil, ErrInputTooLarge
		}
		return nil, fmt.Errorf("reading source: %w", err)
	}

	img = flatten(img)
	if p.Grayscale {
		img = toGray(imaging.Grayscale(img))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.quality(p.Quality))); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	bounds := img.Bounds()
	return &Result{
		Data:         buf.Bytes(),
		Format:       model.OutputFormat,
		SourceFormat: format,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		InputBytes:   counter.n,
	}, nil
}

func (t *Transcoder) quality(requested int) int {
	switch {
	case requested <= 0:
		return t.defaultQuality
	case requested > 100:
		return 100
	default:
		return requested
	}
}

// flatten composites images with transparency onto white, since JPEG has no
// alpha channel and would otherwise render transparent pixels black.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}

// toGray converts to a single-channel image so the encoder writes a
// grayscale JPEG instead of three identical channels.
func toGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)
	return gray
}

// countingReader counts bytes and fails once more than limit bytes were read.
type countingReader struct {
	r        io.Reader
	n        int64
	limit    int64
	exceeded bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		c.exceeded = true
		return n, ErrInputTooLarge
	}
	return n, err
}
