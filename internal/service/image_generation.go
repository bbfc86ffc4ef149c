package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/basel-ax/orthoview/internal/domain"
	"github.com/basel-ax/orthoview/internal/metrics"
)

// ImageGenerationService fans out one view request per view kind and joins the results
type ImageGenerationService struct {
	generator domain.ViewGenerator
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewImageGenerationService creates a new image generation service.
// collector may be nil.
func NewImageGenerationService(generator domain.ViewGenerator, collector *metrics.Collector, logger *zap.Logger) *ImageGenerationService {
	return &ImageGenerationService{
		generator: generator,
		metrics:   collector,
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
}

// GenerateAll requests the front, side and top views concurrently.
// Either all three views are returned or the first error is, never a partial set.
func (s *ImageGenerationService) GenerateAll(ctx context.Context, payload domain.EncodedPayload) (domain.GeneratedViewSet, error) {
	var results [len(domain.AllViewKinds)]string

	// A failed view does not cancel the others
	var g errgroup.Group
	for i, kind := range domain.AllViewKinds {
		g.Go(func() error {
			start := time.Now()
			data, err := s.generator.GenerateView(ctx, payload, kind)
			s.metrics.RecordView(string(kind), err, time.Since(start))
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Warn("Generation failed", zap.Error(err))
		return domain.GeneratedViewSet{}, err
	}

	var set domain.GeneratedViewSet
	for i, kind := range domain.AllViewKinds {
		if err := set.Set(kind, results[i]); err != nil {
			return domain.GeneratedViewSet{}, err
		}
	}

	s.logger.Info("All views generated")
	return set, nil
}
