package barcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"walletpass/internal/pass/ports"
	"walletpass/internal/pass/structured"
)

// ZXing decodes QR and linear barcodes locally straight from the photo.
type ZXing struct{}

func (ZXing) Name() string { return "zxing" }

func (ZXing) Decode(_ context.Context, raw []byte) (string, error) {
	img, err := decodeImage(raw)
	if err != nil {
		return "", err
	}
	return readSymbol(img, nil)
}

// Enhanced converts the photo to grayscale, boosts contrast and sharpens it
// before decoding. It helps with dim or washed-out captures.
type Enhanced struct {
	// Contrast is the imaging.AdjustContrast percentage; 0 means 40.
	Contrast float64
}

func (Enhanced) Name() string { return "zxing-enhanced" }

func (e Enhanced) Decode(_ context.Context, raw []byte) (string, error) {
	img, err := decodeImage(raw)
	if err != nil {
		return "", err
	}
	contrast := e.Contrast
	if contrast == 0 {
		contrast = 40
	}
	prepared := imaging.Sharpen(imaging.AdjustContrast(imaging.Grayscale(img), contrast), 1.0)
	return readSymbol(prepared, map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	})
}

func decodeImage(raw []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// symbolReaders lists the formats the local strategies try, QR first. Cards
// carry either a QR code or a linear barcode.
func symbolReaders() []gozxing.Reader {
	return []gozxing.Reader{
		qrcode.NewQRCodeReader(),
		oned.NewCode128Reader(),
		oned.NewCode39Reader(),
		oned.NewEAN13Reader(),
		oned.NewITFReader(),
	}
}

func readSymbol(img image.Image, hints map[gozxing.DecodeHintType]interface{}) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize: %w", err)
	}
	var lastErr error
	for _, reader := range symbolReaders() {
		result, err := reader.Decode(bmp, hints)
		if err == nil {
			return result.GetText(), nil
		}
		if !isMiss(err) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrNoBarcode
}

// isMiss reports whether a reader simply found no symbol of its format.
func isMiss(err error) bool {
	var notFound gozxing.NotFoundException
	var format gozxing.FormatException
	var checksum gozxing.ChecksumException
	return errors.As(err, &notFound) || errors.As(err, &format) || errors.As(err, &checksum)
}

// Vision asks the vision service to read the code. It is the slowest and most
// expensive strategy and belongs last in the cascade.
type Vision struct {
	completer ports.Completer
}

// BarcodeField is the JSON key the vision service is asked to fill.
const BarcodeField = "barcode"

const visionInstruction = `Read the QR code or barcode in this image. ` +
	`Reply with only a JSON object of the form {"barcode": "<decoded text>"}. ` +
	`Use an empty string if no code is readable.`

func NewVision(completer ports.Completer) *Vision {
	return &Vision{completer: completer}
}

func (*Vision) Name() string { return "vision" }

func (v *Vision) Decode(ctx context.Context, raw []byte) (string, error) {
	answer, err := v.completer.CompleteJSON(ctx, visionInstruction, raw, http.DetectContentType(raw))
	if err != nil {
		return "", err
	}
	payload, err := structured.ParseField(answer, BarcodeField)
	if errors.Is(err, structured.ErrFieldMissing) {
		return "", ErrNoBarcode
	}
	return payload, err
}
