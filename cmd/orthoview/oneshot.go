package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/basel-ax/orthoview/internal/app"
	"github.com/basel-ax/orthoview/internal/domain"
)

// runOnce generates the views for a single image file and writes them to outDir
func runOnce(ctx context.Context, state *app.State, imagePath, outDir string, logger *zap.Logger) error {
	content, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	// The media type is sniffed from the content
	if err := state.Upload(domain.UploadedImage{Content: content, FileName: filepath.Base(imagePath)}); err != nil {
		return err
	}
	if err := state.Generate(ctx); err != nil {
		return err
	}

	snap := state.Snapshot()
	if snap.Phase != app.PhaseSucceeded {
		return errors.New(snap.Error)
	}

	paths, err := writeViews(outDir, snap.Results)
	if err != nil {
		return err
	}
	for _, path := range paths {
		logger.Info("Wrote view", zap.String("path", path))
	}
	return nil
}

// writeViews decodes each view and stores it as <kind>.png
func writeViews(outDir string, set domain.GeneratedViewSet) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	paths := make([]string, 0, len(domain.AllViewKinds))
	for _, kind := range domain.AllViewKinds {
		data, err := base64.StdEncoding.DecodeString(set.Get(kind))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s view: %w", kind, err)
		}

		path := filepath.Join(outDir, string(kind)+".png")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s view: %w", kind, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
