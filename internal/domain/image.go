package domain

import "fmt"

// UploadedImage represents an image selected by the user
type UploadedImage struct {
	Content     []byte
	FileName    string
	ContentType string
}

// EncodedPayload is the transport form of an uploaded image
type EncodedPayload struct {
	Data      string
	MediaType string
}

// ViewKind identifies one orthographic projection
type ViewKind string

const (
	ViewFront ViewKind = "front"
	ViewSide  ViewKind = "side"
	ViewTop   ViewKind = "top"
)

// AllViewKinds lists the requested views in result-slot order
var AllViewKinds = [3]ViewKind{ViewFront, ViewSide, ViewTop}

// Valid reports whether k is one of the known view kinds
func (k ViewKind) Valid() bool {
	switch k {
	case ViewFront, ViewSide, ViewTop:
		return true
	}
	return false
}

// GeneratedViewSet holds the base64 image data for each view, empty meaning absent
type GeneratedViewSet struct {
	Front string `json:"front"`
	Side  string `json:"side"`
	Top   string `json:"top"`
}

// Get returns the image data for the given view
func (s GeneratedViewSet) Get(kind ViewKind) string {
	switch kind {
	case ViewFront:
		return s.Front
	case ViewSide:
		return s.Side
	case ViewTop:
		return s.Top
	}
	return ""
}

// Set stores the image data for the given view
func (s *GeneratedViewSet) Set(kind ViewKind, data string) error {
	switch kind {
	case ViewFront:
		s.Front = data
	case ViewSide:
		s.Side = data
	case ViewTop:
		s.Top = data
	default:
		return fmt.Errorf("unknown view kind: %q", kind)
	}
	return nil
}

// IsEmpty reports whether no view is populated
func (s GeneratedViewSet) IsEmpty() bool {
	return s.Front == "" && s.Side == "" && s.Top == ""
}

// Complete reports whether every view is populated
func (s GeneratedViewSet) Complete() bool {
	return s.Front != "" && s.Side != "" && s.Top != ""
}
