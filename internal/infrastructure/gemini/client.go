package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/basel-ax/orthoview/internal/domain"
)

const (
	defaultModel          = "gemini-2.5-flash-image"
	responseModalityImage = "IMAGE"

	promptTemplate = "Generate a clean, orthographic %s view technical drawing of the object in the image. " +
		"The background must be pure white. The lines should be black. Do not include any text or dimensions."
)

// Config holds the credentials and endpoint of the Gemini API
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// Timeout of zero leaves the transport default in place
	Timeout time.Duration
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client generates orthographic views through Gemini's native image output
type Client struct {
	models contentGenerator
	model  string
	logger *zap.Logger
}

var _ domain.ViewGenerator = (*Client)(nil)

// NewClient creates a new Gemini view client
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Key: "GEMINI_API_KEY", Message: "is required"}
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return newClient(client.Models, cfg.Model, logger), nil
}

func newClient(models contentGenerator, model string, logger *zap.Logger) *Client {
	if model == "" {
		model = defaultModel
	}
	return &Client{
		models: models,
		model:  model,
		logger: logger.With(zap.String("component", "gemini"), zap.String("model", model)),
	}
}

// Prompt returns the drawing instruction sent for a view
func Prompt(kind domain.ViewKind) string {
	return fmt.Sprintf(promptTemplate, kind)
}

// GenerateView requests one orthographic view of the payload image.
// Transport failures are logged and replaced by a generic per-view error.
func (c *Client) GenerateView(ctx context.Context, payload domain.EncodedPayload, kind domain.ViewKind) (string, error) {
	imageData, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return "", c.fail(kind, fmt.Errorf("failed to decode payload: %w", err))
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(imageData, payload.MediaType),
			genai.NewPartFromText(Prompt(kind)),
		}, genai.RoleUser),
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{responseModalityImage},
	})
	if err != nil {
		return "", c.fail(kind, fmt.Errorf("generate content: %w", err))
	}

	data, ok := firstInlineData(resp)
	if !ok {
		c.logger.Warn("Response carried no image data", zap.String("view", string(kind)))
		return "", domain.NewMissingImageData(kind)
	}

	c.logger.Debug("View generated", zap.String("view", string(kind)), zap.Int("bytes", len(data)))
	return base64.StdEncoding.EncodeToString(data), nil
}

func (c *Client) fail(kind domain.ViewKind, cause error) error {
	c.logger.Error("Error generating view", zap.String("view", string(kind)), zap.Error(cause))
	return domain.NewGenerationFailure(kind, cause)
}

// firstInlineData scans the first candidate's parts in order
func firstInlineData(resp *genai.GenerateContentResponse) ([]byte, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, false
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return nil, false
	}

	for _, part := range candidate.Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, true
		}
	}
	return nil, false
}
