// Package ports defines the collaborator interfaces consumed by the pass
// pipeline. Adapters under internal/pass/adapters implement them.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks MediaFetcher,Notifier,FaceDetector,SecretStore,ArtifactStore,Completer

import (
	"context"

	"walletpass/internal/pass/models"
)

// MediaFetcher downloads inbound media from the messaging platform.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaID string) ([]byte, error)
}

// Notifier sends outbound messages to a sender.
type Notifier interface {
	SendText(ctx context.Context, to, body string) error
	SendDocument(ctx context.Context, to, link, filename, caption string) error
}

// FaceDetector returns every face box found in an image, in detector order.
type FaceDetector interface {
	DetectFaces(ctx context.Context, image []byte) ([]models.FaceBox, error)
}

// SecretStore returns a raw secret value by logical name.
type SecretStore interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// ArtifactStore is the durable home of generated passes. Exists returns
// (false, nil) for a missing object; any other failure is an error.
type ArtifactStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	URL(key string) string
}

// Completer asks a vision/text service for a JSON object answer about an
// image and returns the raw JSON text.
type Completer interface {
	CompleteJSON(ctx context.Context, instruction string, image []byte, mimeType string) (string, error)
}
