// Package events emits one outcome record per pipeline run so downstream
// consumers can follow generation without polling object storage.
package events

import (
	"context"
	"sync"
	"time"
)

type Type string

const (
	TypePublished Type = "pass.published"
	TypeNoFace    Type = "pass.no_face"
	TypeFailed    Type = "pass.failed"
	TypeSkipped   Type = "pass.skipped"
)

// Event never carries image bytes, names or secret material.
type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	MessageID   string    `json:"message_id"`
	ImageID     string    `json:"image_id"`
	RequestID   string    `json:"request_id,omitempty"`
	State       string    `json:"state"`
	ArtifactKey string    `json:"artifact_key,omitempty"`
	PassURL     string    `json:"pass_url,omitempty"`
	Barcode     string    `json:"barcode_strategy,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher is fire-and-forget: delivery problems are logged by the
// implementation and never fail a run.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
