package generate

import (
	"fmt"

	"go.uber.org/zap"
)

// MaxPromptLength bounds the prompt sent to the image backend.
const MaxPromptLength = 512

const styleDirective = "High-end commercial advertising, studio lighting, clean white background, photorealistic, 4K quality, centered composition."

// PromptInput carries the campaign context a prompt is built from.
type PromptInput struct {
	ProductName        string
	ProductDescription string
	CampaignMessage    string
	TargetAudience     string
	TargetRegion       string
}

// BuildPrompt constructs the generation prompt with degrading fidelity: the
// fullest prompt is preferred, and context is dropped in fixed steps until
// the result fits MaxPromptLength. Each degrade step is a logged policy
// decision, not a silent loss. Given identical inputs the same prompt string
// is produced.
func BuildPrompt(in PromptInput, log *zap.Logger) string {
	full := fmt.Sprintf(`Professional commercial product photography of %s.

Product Details: %s

Target Audience: %s
Target Market: %s
Campaign Message: %s

Style: %s`,
		in.ProductName, in.ProductDescription, in.TargetAudience,
		in.TargetRegion, in.CampaignMessage, styleDirective)

	if len(full) <= MaxPromptLength {
		return full
	}

	withoutAudience := fmt.Sprintf(`Professional commercial product photography of %s.

Product Details: %s

Target Market: %s
Campaign Message: %s

Style: %s`,
		in.ProductName, in.ProductDescription, in.TargetRegion,
		in.CampaignMessage, styleDirective)

	if len(withoutAudience) <= MaxPromptLength {
		log.Warn("prompt over budget, dropped target audience",
			zap.Int("full_length", len(full)))
		return withoutAudience
	}

	minimal := fmt.Sprintf(`Professional product photography of %s.

%s

Style: %s`,
		in.ProductName, in.ProductDescription, styleDirective)

	if len(minimal) <= MaxPromptLength {
		log.Warn("prompt over budget, dropped campaign context",
			zap.Int("full_length", len(full)))
		return minimal
	}

	log.Warn("prompt over budget, hard truncating",
		zap.Int("minimal_length", len(minimal)),
		zap.Int("max_length", MaxPromptLength))
	return minimal[:MaxPromptLength]
}
