// Package models holds the transient records that flow through the pass
// generation pipeline.
package models

import (
	"fmt"
	"strings"
)

const (
	// ArtifactPrefix is the object-storage prefix for generated passes.
	ArtifactPrefix = "passes/"
	// ArtifactContentType is the wallet pass MIME type.
	ArtifactContentType = "application/vnd.apple.pkpass"
)

// ImageRef identifies one submitted image. MessageID is the platform's stable
// per-message identifier (retries reuse it); ImageID is the media identifier.
type ImageRef struct {
	MessageID string
	ImageID   string
	Sender    string
	MimeType  string
}

// Validate checks that the reference can key both dedup tiers.
func (r ImageRef) Validate() error {
	if strings.TrimSpace(r.ImageID) == "" {
		return fmt.Errorf("image id is required")
	}
	if strings.ContainsAny(r.ImageID, "/\\") {
		return fmt.Errorf("image id %q contains a path separator", r.ImageID)
	}
	if strings.TrimSpace(r.Sender) == "" {
		return fmt.Errorf("sender is required")
	}
	return nil
}

// DedupKey is the in-memory guard key: the message ID, or the image ID when
// the transport supplied none.
func (r ImageRef) DedupKey() string {
	if r.MessageID != "" {
		return r.MessageID
	}
	return r.ImageID
}

// StorageKey is the deterministic artifact key for this image. The guard and
// the assembler both derive it here.
func StorageKey(imageID string) string {
	return ArtifactPrefix + imageID + ".pkpass"
}

// FallbackBarcode is substituted when no decoder recovers a payload.
func FallbackBarcode(imageID string) string {
	return "ID-" + imageID
}

// SerialNumber is the pass serial derived from the image.
func SerialNumber(imageID string) string {
	return "pass-" + imageID
}

// FaceBox is a detector bounding box in normalized [0,1] coordinates.
type FaceBox struct {
	Left       float64
	Top        float64
	Width      float64
	Height     float64
	Confidence float64
}

// Area is the normalized box area used to pick the dominant face.
func (b FaceBox) Area() float64 {
	return b.Width * b.Height
}

// CropRegion is a pixel rectangle [X0,X1)×[Y0,Y1) inside the image.
type CropRegion struct {
	X0, Y0, X1, Y1 int
}

func (c CropRegion) Width() int  { return c.X1 - c.X0 }
func (c CropRegion) Height() int { return c.Y1 - c.Y0 }

// Portrait is the rendered face crop at 1x and 2x thumbnail sizes (PNG).
type Portrait struct {
	Region CropRegion
	PNG1x  []byte
	PNG2x  []byte
}

// Barcode is the outcome of the recovery cascade. Found is false when every
// strategy failed; Payload is then empty.
type Barcode struct {
	Payload  string
	Strategy string
	Found    bool
}

// CredentialSet is signing-ready PEM material. SignerKey is always in the
// legacy single-key form (PKCS#1 RSA or SEC1 EC).
type CredentialSet struct {
	WWDR       string
	SignerCert string
	SignerKey  string
}

// Artifact is a signed pass and where it will live.
type Artifact struct {
	Key         string
	ContentType string
	Body        []byte
}
