// Package face selects the dominant face in an image and renders a padded
// portrait crop of it.
package face

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"

	"walletpass/internal/pass/models"
	"walletpass/internal/pass/ports"
	"walletpass/internal/platform/logger"
)

// ErrNoFaceDetected is returned by Locate when the detector finds nothing.
// It is terminal for a run and not worth retrying.
var ErrNoFaceDetected = errors.New("no face detected")

const (
	// DefaultMarginScale grows the face box by 40% before cropping.
	DefaultMarginScale = 1.4
	// DefaultThumbnailSize is the 1x portrait bound in pixels.
	DefaultThumbnailSize = 90
)

// Locator wraps the face-detection collaborator and the crop geometry.
type Locator struct {
	detector    ports.FaceDetector
	marginScale float64
	thumbSize   int
	logger      *slog.Logger
}

type Option func(*Locator)

func WithLogger(l *slog.Logger) Option {
	return func(loc *Locator) {
		loc.logger = l
	}
}

// WithMarginScale sets the expansion factor; values below 1 are treated as 1.
func WithMarginScale(scale float64) Option {
	return func(loc *Locator) {
		loc.marginScale = scale
	}
}

func WithThumbnailSize(px int) Option {
	return func(loc *Locator) {
		if px > 0 {
			loc.thumbSize = px
		}
	}
}

// New constructs a Locator.
func New(detector ports.FaceDetector, opts ...Option) (*Locator, error) {
	if detector == nil {
		return nil, fmt.Errorf("face detector is required")
	}
	l := &Locator{
		detector:    detector,
		marginScale: DefaultMarginScale,
		thumbSize:   DefaultThumbnailSize,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Locate calls the detector once and returns the dominant face.
func (l *Locator) Locate(ctx context.Context, img []byte) (models.FaceBox, error) {
	boxes, err := l.detector.DetectFaces(ctx, img)
	if err != nil {
		return models.FaceBox{}, fmt.Errorf("detect faces: %w", err)
	}
	l.logger.InfoContext(ctx, "faces detected", "count", len(boxes))

	box, ok := Dominant(boxes)
	if !ok {
		return models.FaceBox{}, ErrNoFaceDetected
	}
	return box, nil
}

// Dominant returns the box with the largest area. The first box wins ties.
func Dominant(boxes []models.FaceBox) (models.FaceBox, bool) {
	if len(boxes) == 0 {
		return models.FaceBox{}, false
	}
	best := boxes[0]
	bestArea := safeArea(best)
	for _, b := range boxes[1:] {
		if a := safeArea(b); a > bestArea {
			best, bestArea = b, a
		}
	}
	return best, true
}

func safeArea(b models.FaceBox) float64 {
	a := b.Area()
	if math.IsNaN(a) || a < 0 {
		return 0
	}
	return a
}

// Region converts a normalized box into a pixel rectangle grown by
// (marginScale-1)/2 of the box size on each side and clamped to the image.
// The result always has at least one pixel of width and height; width and
// height must be positive.
func Region(box models.FaceBox, width, height int, marginScale float64) models.CropRegion {
	if math.IsNaN(marginScale) || marginScale < 1 {
		marginScale = 1
	}
	x0, x1 := span(box.Left, box.Width, width, marginScale)
	y0, y1 := span(box.Top, box.Height, height, marginScale)
	return models.CropRegion{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func span(start, size float64, extent int, marginScale float64) (int, int) {
	full := float64(extent)
	origin := unit(start) * full
	length := unit(size) * full

	pad := length * (marginScale - 1) / 2
	if math.IsNaN(pad) || pad < 0 {
		pad = 0
	}
	lo := clampFloat(math.Floor(origin-pad), 0, full)
	hi := clampFloat(math.Ceil(origin+length+pad), 0, full)

	a, b := int(lo), int(hi)
	if b <= a {
		if a >= extent {
			a = extent - 1
		}
		b = a + 1
	}
	return a, b
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return clampFloat(v, 0, 1)
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Crop decodes the image (honoring EXIF orientation), cuts the padded face
// region and renders PNG thumbnails at 1x and 2x.
func (l *Locator) Crop(img []byte, box models.FaceBox) (models.Portrait, error) {
	src, err := imaging.Decode(bytes.NewReader(img), imaging.AutoOrientation(true))
	if err != nil {
		return models.Portrait{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return models.Portrait{}, fmt.Errorf("decode image: empty bounds")
	}

	region := Region(box, bounds.Dx(), bounds.Dy(), l.marginScale)
	rect := image.Rect(region.X0, region.Y0, region.X1, region.Y1).Add(bounds.Min)
	face := imaging.Crop(src, rect)

	png1x, err := encodePNG(imaging.Fit(face, l.thumbSize, l.thumbSize, imaging.Lanczos))
	if err != nil {
		return models.Portrait{}, err
	}
	png2x, err := encodePNG(imaging.Fit(face, 2*l.thumbSize, 2*l.thumbSize, imaging.Lanczos))
	if err != nil {
		return models.Portrait{}, err
	}
	return models.Portrait{Region: region, PNG1x: png1x, PNG2x: png2x}, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode portrait: %w", err)
	}
	return buf.Bytes(), nil
}
