// Package encoding turns uploaded images into base64 payloads for the generation API.
package encoding

import (
	"encoding/base64"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/basel-ax/orthoview/internal/domain"
)

const dataURLPrefix = "data:"

// Encode reads the image as a data URL and splits it into media type and base64 body
func Encode(img domain.UploadedImage) (domain.EncodedPayload, error) {
	return ParseDataURL(ReadAsDataURL(img))
}

// ReadAsDataURL renders the image as data:<mediaType>;base64,<data>.
// An empty image yields the bare "data:" a browser file reader produces.
func ReadAsDataURL(img domain.UploadedImage) string {
	if len(img.Content) == 0 {
		return dataURLPrefix
	}

	mediaType := img.ContentType
	if mediaType == "" {
		mediaType = mimetype.Detect(img.Content).String()
	}

	var b strings.Builder
	b.WriteString(dataURLPrefix)
	b.WriteString(mediaType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(img.Content))
	return b.String()
}

// ParseDataURL extracts the media type and payload of a base64 data URL
func ParseDataURL(dataURL string) (domain.EncodedPayload, error) {
	header, data, found := strings.Cut(dataURL, ",")
	if !found || data == "" {
		return domain.EncodedPayload{}, &domain.EncodingError{Message: "failed to parse file data: missing payload"}
	}

	if !strings.HasPrefix(header, dataURLPrefix) {
		return domain.EncodedPayload{}, &domain.EncodingError{Message: "failed to parse file data: missing data URL header"}
	}

	mediaType, _, _ := strings.Cut(strings.TrimPrefix(header, dataURLPrefix), ";")
	if mediaType == "" {
		return domain.EncodedPayload{}, &domain.EncodingError{Message: "failed to parse file data: missing media type"}
	}

	return domain.EncodedPayload{
		Data:      data,
		MediaType: mediaType,
	}, nil
}
