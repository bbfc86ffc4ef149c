// Package app holds the upload and generation state that drives the front end.
//
// A State moves through Idle (no image), Ready, Generating, and then Succeeded
// or Failed. Neither end state is terminal: both accept a new upload or a new
// generation. Only one generation may run at a time.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/basel-ax/orthoview/internal/domain"
	"github.com/basel-ax/orthoview/internal/encoding"
	"github.com/basel-ax/orthoview/internal/metrics"
)

const (
	unknownErrorMessage = "An unknown error occurred. Please try again."
	recordTimeout       = 10 * time.Second
)

// Phase is the UI state derived from the stored fields
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseReady      Phase = "ready"
	PhaseGenerating Phase = "generating"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// Orchestrator generates the complete view set for a payload
type Orchestrator interface {
	GenerateAll(ctx context.Context, payload domain.EncodedPayload) (domain.GeneratedViewSet, error)
}

// EncodeFunc converts an uploaded image into a payload
type EncodeFunc func(img domain.UploadedImage) (domain.EncodedPayload, error)

// Snapshot is a copy of the state for rendering
type Snapshot struct {
	Phase     Phase                   `json:"phase"`
	HasImage  bool                    `json:"hasImage"`
	ImageName string                  `json:"imageName,omitempty"`
	IsLoading bool                    `json:"isLoading"`
	Error     string                  `json:"error,omitempty"`
	Results   domain.GeneratedViewSet `json:"results"`
	UpdatedAt time.Time               `json:"updatedAt"`
}

// State holds the uploaded image, loading flag, error message and results
type State struct {
	mu        sync.Mutex
	image     *domain.UploadedImage
	loading   bool
	errMsg    string
	results   domain.GeneratedViewSet
	updatedAt time.Time
	inFlight  sync.WaitGroup

	orchestrator Orchestrator
	encode       EncodeFunc
	recorder     domain.GenerationRecorder
	metrics      *metrics.Collector
	logger       *zap.Logger
}

// Option configures a State
type Option func(*State)

// WithRecorder archives every finished generation
func WithRecorder(recorder domain.GenerationRecorder) Option {
	return func(s *State) {
		s.recorder = recorder
	}
}

// WithMetrics records run outcomes on the collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *State) {
		s.metrics = collector
	}
}

// WithEncoder replaces the data URL encoder
func WithEncoder(encode EncodeFunc) Option {
	return func(s *State) {
		s.encode = encode
	}
}

// NewState creates an idle state
func NewState(orchestrator Orchestrator, logger *zap.Logger, opts ...Option) *State {
	s := &State{
		orchestrator: orchestrator,
		encode:       encoding.Encode,
		logger:       logger.With(zap.String("component", "state")),
		updatedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload stores a new image and clears any previous error and results.
// Uploading while a generation runs is rejected.
func (s *State) Upload(img domain.UploadedImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading {
		return domain.ErrGenerationInProgress
	}

	stored := img
	stored.Content = append([]byte(nil), img.Content...)
	s.image = &stored
	s.errMsg = ""
	s.results = domain.GeneratedViewSet{}
	s.updatedAt = time.Now()

	s.logger.Info("Image uploaded", zap.String("file", img.FileName), zap.Int("bytes", len(img.Content)))
	return nil
}

// Generate runs a generation and blocks until it settles.
// It returns ErrNoImage or ErrGenerationInProgress without touching the state;
// otherwise the outcome is recorded in the state and nil is returned.
func (s *State) Generate(ctx context.Context) error {
	img, err := s.begin()
	if err != nil {
		return err
	}
	s.run(ctx, img)
	return nil
}

// StartGenerate applies the same guards as Generate but runs the generation in the background
func (s *State) StartGenerate(ctx context.Context) error {
	img, err := s.begin()
	if err != nil {
		return err
	}
	go s.run(ctx, img)
	return nil
}

// Wait blocks until no generation is in flight
func (s *State) Wait() {
	s.inFlight.Wait()
}

// Snapshot returns a copy of the current state
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Phase:     s.phase(),
		HasImage:  s.image != nil,
		IsLoading: s.loading,
		Error:     s.errMsg,
		Results:   s.results,
		UpdatedAt: s.updatedAt,
	}
	if s.image != nil {
		snap.ImageName = s.image.FileName
	}
	return snap
}

// Image returns a copy of the uploaded image
func (s *State) Image() (domain.UploadedImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil {
		return domain.UploadedImage{}, false
	}
	img := *s.image
	img.Content = append([]byte(nil), s.image.Content...)
	return img, true
}

func (s *State) phase() Phase {
	switch {
	case s.image == nil:
		return PhaseIdle
	case s.loading:
		return PhaseGenerating
	case s.errMsg != "":
		return PhaseFailed
	case s.results.Complete():
		return PhaseSucceeded
	default:
		return PhaseReady
	}
}

func (s *State) begin() (domain.UploadedImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil {
		return domain.UploadedImage{}, domain.ErrNoImage
	}
	if s.loading {
		s.metrics.GenerationRejected()
		return domain.UploadedImage{}, domain.ErrGenerationInProgress
	}

	s.loading = true
	s.errMsg = ""
	s.results = domain.GeneratedViewSet{}
	s.updatedAt = time.Now()
	s.inFlight.Add(1)

	return *s.image, nil
}

func (s *State) run(ctx context.Context, img domain.UploadedImage) {
	defer s.inFlight.Done()

	start := time.Now()
	s.metrics.GenerationStarted()

	var set domain.GeneratedViewSet
	payload, err := s.encode(img)
	if err == nil {
		set, err = s.orchestrator.GenerateAll(ctx, payload)
	}

	s.metrics.GenerationFinished(err, time.Since(start))
	s.finish(set, err)
	s.record(ctx, img, payload.MediaType, set, err)
}

func (s *State) finish(set domain.GeneratedViewSet, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loading = false
	s.updatedAt = time.Now()

	if err != nil {
		s.errMsg = userMessage(err)
		s.results = domain.GeneratedViewSet{}
		s.logger.Error("Generation failed", zap.Error(err))
		return
	}

	s.results = set
	s.logger.Info("Generation succeeded")
}

func (s *State) record(ctx context.Context, img domain.UploadedImage, mediaType string, set domain.GeneratedViewSet, err error) {
	if s.recorder == nil {
		return
	}

	rec := &domain.GenerationRecord{
		FileName:  img.FileName,
		MediaType: mediaType,
		Status:    domain.StatusSucceeded,
		Views:     set,
	}
	if err != nil {
		rec.Status = domain.StatusFailed
		rec.Error = userMessage(err)
		rec.Views = domain.GeneratedViewSet{}
	}

	// The run may have been triggered by a request that is already gone
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if recErr := s.recorder.Record(recordCtx, rec); recErr != nil {
		s.logger.Error("Error archiving generation", zap.Error(recErr))
	}
}

// userMessage converts any error into the text shown to the user
func userMessage(err error) string {
	var encErr *domain.EncodingError
	if errors.As(err, &encErr) {
		return encErr.Message
	}
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		return genErr.Message
	}
	return unknownErrorMessage
}
