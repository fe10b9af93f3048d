// Package faces detects faces with AWS Rekognition.
package faces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"walletpass/internal/pass/models"
)

// API is the subset of the Rekognition client used here.
type API interface {
	DetectFaces(ctx context.Context, in *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

type Detector struct {
	client  API
	timeout time.Duration
}

func New(client API, timeout time.Duration) (*Detector, error) {
	if client == nil {
		return nil, errors.New("rekognition client is required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Detector{client: client, timeout: timeout}, nil
}

// DetectFaces returns every box Rekognition reports, in its order. Details
// with no bounding box are skipped.
func (d *Detector) DetectFaces(ctx context.Context, image []byte) ([]models.FaceBox, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.client.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: image},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	boxes := make([]models.FaceBox, 0, len(out.FaceDetails))
	for _, fd := range out.FaceDetails {
		if fd.BoundingBox == nil {
			continue
		}
		bb := fd.BoundingBox
		boxes = append(boxes, models.FaceBox{
			Left:       float64(aws.ToFloat32(bb.Left)),
			Top:        float64(aws.ToFloat32(bb.Top)),
			Width:      float64(aws.ToFloat32(bb.Width)),
			Height:     float64(aws.ToFloat32(bb.Height)),
			Confidence: float64(aws.ToFloat32(fd.Confidence)),
		})
	}
	return boxes, nil
}
