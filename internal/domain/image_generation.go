package domain

import (
	"context"
	"time"
)

// ViewGenerator produces a single orthographic view of an encoded image
type ViewGenerator interface {
	// GenerateView returns the generated view as base64 image data
	GenerateView(ctx context.Context, payload EncodedPayload, kind ViewKind) (string, error)
}

// GenerationStatus is the final outcome of a generation run
type GenerationStatus string

const (
	StatusSucceeded GenerationStatus = "Succeeded"
	StatusFailed    GenerationStatus = "Failed"
)

// GenerationRecord is an archived generation run
type GenerationRecord struct {
	ID        string
	FileName  string
	MediaType string
	Status    GenerationStatus
	Error     string
	Views     GeneratedViewSet
	CreatedAt time.Time
}

// GenerationRecorder receives every finished generation run
type GenerationRecorder interface {
	Record(ctx context.Context, rec *GenerationRecord) error
}
