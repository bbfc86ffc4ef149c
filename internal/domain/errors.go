package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoImage is returned when generation is requested before any upload
	ErrNoImage = errors.New("no image uploaded")

	// ErrGenerationInProgress is returned while a generation is already running
	ErrGenerationInProgress = errors.New("generation already in progress")
)

// EncodingError reports a local file that could not be turned into a payload
type EncodingError struct {
	Message string
	Err     error
}

func (e *EncodingError) Error() string {
	return e.Message
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// GenerationError reports a failed view generation.
// Message is safe to show to the user; the transport cause stays in Err.
type GenerationError struct {
	View    ViewKind
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// NewGenerationFailure wraps a transport or API failure for the given view
func NewGenerationFailure(view ViewKind, cause error) *GenerationError {
	return &GenerationError{
		View:    view,
		Message: fmt.Sprintf("could not generate %s view", view),
		Err:     cause,
	}
}

// NewMissingImageData reports a response that carried no image for the given view
func NewMissingImageData(view ViewKind) *GenerationError {
	return &GenerationError{
		View:    view,
		Message: fmt.Sprintf("no image data for view %s", view),
	}
}

// ConfigurationError reports invalid or missing startup configuration
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Key, e.Message)
}
