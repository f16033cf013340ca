package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiBackend generates product images through the Gemini API's Imagen
// models.
type GeminiBackend struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// NewGeminiBackend creates a backend for the given model identifier.
func NewGeminiBackend(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("generate: gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: create gemini client: %w", err)
	}
	return &GeminiBackend{
		client: client,
		model:  model,
		log:    logger.Named("gemini"),
	}, nil
}

// Generate produces one PNG image for the prompt. Provider throttling is
// reported as ErrRateLimited so the worker's backoff policy applies.
func (g *GeminiBackend) Generate(ctx context.Context, prompt string) ([]byte, error) {
	g.log.Debug("calling image model",
		zap.String("model", g.model),
		zap.Int("prompt_length", len(prompt)))

	resp, err := g.client.Models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: "image/png",
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED") {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("image model call failed: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("image model returned no images")
	}
	return resp.GeneratedImages[0].Image.ImageBytes, nil
}
