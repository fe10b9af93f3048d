package face

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"walletpass/internal/pass/models"
)

type stubDetector struct {
	boxes []models.FaceBox
	err   error
	calls int
}

func (s *stubDetector) DetectFaces(_ context.Context, _ []byte) ([]models.FaceBox, error) {
	s.calls++
	return s.boxes, s.err
}

type LocatorSuite struct {
	suite.Suite
	detector *stubDetector
	locator  *Locator
}

func TestLocatorSuite(t *testing.T) {
	suite.Run(t, new(LocatorSuite))
}

func (s *LocatorSuite) SetupTest() {
	s.detector = &stubDetector{}
	var err error
	s.locator, err = New(s.detector, WithMarginScale(1.5), WithThumbnailSize(40))
	s.Require().NoError(err)
}

func (s *LocatorSuite) TestNew() {
	_, err := New(nil)
	s.Error(err)
	s.Contains(err.Error(), "face detector is required")
}

func (s *LocatorSuite) TestLocate() {
	ctx := context.Background()

	s.Run("zero faces is NoFaceDetected", func() {
		s.detector.boxes = nil
		_, err := s.locator.Locate(ctx, []byte("img"))
		s.ErrorIs(err, ErrNoFaceDetected)
	})

	s.Run("detector failure propagates", func() {
		s.detector.boxes = nil
		s.detector.err = errors.New("throttled")
		_, err := s.locator.Locate(ctx, []byte("img"))
		s.Error(err)
		s.NotErrorIs(err, ErrNoFaceDetected)
		s.detector.err = nil
	})

	s.Run("largest face is returned after one detector call", func() {
		s.detector.calls = 0
		s.detector.boxes = []models.FaceBox{
			{Left: 0.1, Top: 0.1, Width: 0.1, Height: 0.1},
			{Left: 0.5, Top: 0.5, Width: 0.3, Height: 0.3},
		}
		box, err := s.locator.Locate(ctx, []byte("img"))
		s.NoError(err)
		s.Equal(0.3, box.Width)
		s.Equal(1, s.detector.calls)
	})
}

func (s *LocatorSuite) TestCrop() {
	img := solidPNG(s.T(), 200, 100)
	box := models.FaceBox{Left: 0.25, Top: 0.2, Width: 0.5, Height: 0.6}

	portrait, err := s.locator.Crop(img, box)
	s.Require().NoError(err)

	// box is 100x60 px at (50,20); 1.5 margin pads 25px / 15px per side
	s.Equal(models.CropRegion{X0: 25, Y0: 5, X1: 175, Y1: 95}, portrait.Region)

	small, err := png.Decode(bytes.NewReader(portrait.PNG1x))
	s.Require().NoError(err)
	s.LessOrEqual(small.Bounds().Dx(), 40)
	s.LessOrEqual(small.Bounds().Dy(), 40)

	large, err := png.Decode(bytes.NewReader(portrait.PNG2x))
	s.Require().NoError(err)
	s.Greater(large.Bounds().Dx(), small.Bounds().Dx())
}

func (s *LocatorSuite) TestCropRejectsGarbage() {
	_, err := s.locator.Crop([]byte("not an image"), models.FaceBox{Width: 1, Height: 1})
	s.Error(err)
}

func TestDominant(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, ok := Dominant(nil)
		assert.False(t, ok)
	})

	t.Run("first wins on equal area", func(t *testing.T) {
		boxes := []models.FaceBox{
			{Left: 0.0, Width: 0.2, Height: 0.5, Confidence: 1},
			{Left: 0.5, Width: 0.5, Height: 0.2, Confidence: 2},
		}
		got, ok := Dominant(boxes)
		require.True(t, ok)
		assert.Equal(t, float64(1), got.Confidence)
	})

	t.Run("maximal area wins regardless of position", func(t *testing.T) {
		r := rand.New(rand.NewPCG(7, 11))
		for i := 0; i < 200; i++ {
			n := 1 + r.IntN(6)
			boxes := make([]models.FaceBox, n)
			for j := range boxes {
				boxes[j] = models.FaceBox{Width: r.Float64(), Height: r.Float64(), Confidence: float64(j)}
			}
			got, _ := Dominant(boxes)
			for j, b := range boxes {
				assert.GreaterOrEqual(t, got.Area(), b.Area())
				if b.Area() == got.Area() {
					assert.Equal(t, float64(j), got.Confidence, "first maximal box expected")
					break
				}
			}
		}
	})
}

func TestRegion_AlwaysInsideImage(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	weird := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -0.5, 1.5}
	pick := func() float64 {
		if r.IntN(5) == 0 {
			return weird[r.IntN(len(weird))]
		}
		return r.Float64()
	}

	for i := 0; i < 2000; i++ {
		w, h := 1+r.IntN(4000), 1+r.IntN(4000)
		box := models.FaceBox{Left: pick(), Top: pick(), Width: pick(), Height: pick()}
		scale := 1 + r.Float64()*3
		if i%50 == 0 {
			scale = math.Inf(1)
		}

		reg := Region(box, w, h, scale)

		require.GreaterOrEqual(t, reg.X0, 0)
		require.GreaterOrEqual(t, reg.Y0, 0)
		require.LessOrEqual(t, reg.X1, w)
		require.LessOrEqual(t, reg.Y1, h)
		require.Positive(t, reg.Width(), "box=%+v w=%d", box, w)
		require.Positive(t, reg.Height(), "box=%+v h=%d", box, h)
	}
}

func TestRegion_MarginScaleBelowOneIsIdentity(t *testing.T) {
	box := models.FaceBox{Left: 0.1, Top: 0.1, Width: 0.5, Height: 0.5}
	assert.Equal(t, Region(box, 100, 100, 1), Region(box, 100, 100, 0.3))
	assert.Equal(t, models.CropRegion{X0: 10, Y0: 10, X1: 60, Y1: 60}, Region(box, 100, 100, 1))
}

func TestRegion_ClampsAtEdges(t *testing.T) {
	box := models.FaceBox{Left: 0.9, Top: 0.0, Width: 0.2, Height: 0.2}
	reg := Region(box, 100, 100, 2)
	assert.Equal(t, models.CropRegion{X0: 80, Y0: 0, X1: 100, Y1: 30}, reg)
}

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
