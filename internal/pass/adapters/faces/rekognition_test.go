package faces

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRekognition struct {
	out *rekognition.DetectFacesOutput
	err error
	in  *rekognition.DetectFacesInput
}

func (f *fakeRekognition) DetectFaces(_ context.Context, in *rekognition.DetectFacesInput, _ ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error) {
	f.in = in
	return f.out, f.err
}

func TestDetectFacesMapsBoxes(t *testing.T) {
	api := &fakeRekognition{out: &rekognition.DetectFacesOutput{FaceDetails: []types.FaceDetail{
		{
			BoundingBox: &types.BoundingBox{Left: aws.Float32(0.25), Top: aws.Float32(0.5), Width: aws.Float32(0.125), Height: aws.Float32(0.25)},
			Confidence:  aws.Float32(99.5),
		},
		{Confidence: aws.Float32(80)},
		{BoundingBox: &types.BoundingBox{Width: aws.Float32(0.5), Height: aws.Float32(0.5)}},
	}}}
	d, err := New(api, 0)
	require.NoError(t, err)

	boxes, err := d.DetectFaces(context.Background(), []byte("jpeg"))

	require.NoError(t, err)
	require.Len(t, boxes, 2)
	assert.InDelta(t, 0.25, boxes[0].Left, 1e-6)
	assert.InDelta(t, 0.5, boxes[0].Top, 1e-6)
	assert.InDelta(t, 0.125, boxes[0].Width, 1e-6)
	assert.InDelta(t, 0.25, boxes[0].Height, 1e-6)
	assert.InDelta(t, 99.5, boxes[0].Confidence, 1e-4)
	assert.InDelta(t, 0.0, boxes[1].Left, 1e-6)
	assert.Equal(t, []byte("jpeg"), api.in.Image.Bytes)
}

func TestDetectFacesNone(t *testing.T) {
	d, err := New(&fakeRekognition{out: &rekognition.DetectFacesOutput{}}, 0)
	require.NoError(t, err)

	boxes, err := d.DetectFaces(context.Background(), []byte("jpeg"))

	require.NoError(t, err)
	assert.Empty(t, boxes)
}

func TestDetectFacesError(t *testing.T) {
	d, err := New(&fakeRekognition{err: errors.New("throttled")}, 0)
	require.NoError(t, err)

	_, err = d.DetectFaces(context.Background(), []byte("jpeg"))
	assert.ErrorContains(t, err, "throttled")
}
