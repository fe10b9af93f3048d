package assembler

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Asset names every pass carries besides the portrait.
var staticAssetNames = []string{"icon.png", "icon@2x.png", "logo.png", "logo@2x.png"}

var assetSizes = map[string]int{
	"icon.png":    29,
	"icon@2x.png": 58,
	"logo.png":    50,
	"logo@2x.png": 100,
}

// Assets maps bundle file names to their bytes.
type Assets map[string][]byte

// DefaultAssets draws a plain white dot for each static asset.
func DefaultAssets() (Assets, error) {
	out := make(Assets, len(staticAssetNames))
	for _, name := range staticAssetNames {
		b, err := dotPNG(assetSizes[name])
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

// LoadAssets reads the static assets from dir. Files that are missing fall
// back to the generated dot.
func LoadAssets(dir string) (Assets, error) {
	out, err := DefaultAssets()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return out, nil
	}
	for _, name := range staticAssetNames {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read asset %s: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

func dotPNG(size int) ([]byte, error) {
	img := imaging.New(size, size, color.Transparent)
	r := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)+0.5-r, float64(y)+0.5-r
			if dx*dx+dy*dy <= r*r {
				img.Set(x, y, color.White)
			}
		}
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
