package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

// RewritePrompt asks Gemini Flash to turn a raw user prompt into a richer
// image-generation prompt in the requested style. Returns an error when the
// model is unavailable, the call fails, or the response is empty; the caller
// owns the fallback.
func (c *Client) RewritePrompt(ctx context.Context, original, style string) (string, error) {
	log.Debug().
		Str("style", style).
		Int("prompt_len", len(original)).
		Msg("Rewriting prompt")

	if c.llmFlash == nil {
		return "", fmt.Errorf("flash model not initialized")
	}

	prompt := fmt.Sprintf(`You are an expert at writing image generation prompts for AI models like Midjourney or DALL-E.

Rewrite the following user request as a single detailed image generation prompt in a %s style.

User request:
%s

Focus on:
- Visual elements, composition, subject details
- Mood, lighting, atmosphere

Keep it under 60 words. Return ONLY the rewritten prompt, no explanations.`, style, original)

	response, err := llms.GenerateFromSinglePrompt(ctx, c.llmFlash, prompt,
		llms.WithTemperature(0.8),
		llms.WithMaxTokens(200),
	)
	if err != nil {
		return "", fmt.Errorf("gemini prompt rewrite: %w", err)
	}

	logGeminiResponse("RewritePrompt", response)

	rewritten := strings.TrimSpace(response)
	if rewritten == "" {
		return "", fmt.Errorf("gemini returned empty rewritten prompt")
	}

	log.Info().
		Int("prompt_length", len(rewritten)).
		Msg("Prompt rewrite complete (Gemini)")

	return rewritten, nil
}
