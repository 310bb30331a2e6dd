package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultStyle is applied when a request carries no style tag.
const DefaultStyle = "realistic"

// maxEnhancedLen caps the augmentation returned by the model.
const maxEnhancedLen = 400

// TextRewriter is the external text-generation call behind the enhancer.
type TextRewriter interface {
	RewritePrompt(ctx context.Context, original, style string) (string, error)
}

// PromptEnhancer turns a raw user prompt into a richer image-generation
// prompt. External failure degrades to a deterministic template so the output
// is always well-formed input for synthesis.
type PromptEnhancer struct {
	model   TextRewriter
	timeout time.Duration
}

// NewPromptEnhancer creates a prompt enhancer. model may be nil, in which
// case every call resolves to the template fallback. timeout bounds the
// external call; zero leaves the caller's context in charge.
func NewPromptEnhancer(model TextRewriter, timeout time.Duration) *PromptEnhancer {
	return &PromptEnhancer{model: model, timeout: timeout}
}

// FallbackEnhancedPrompt is the deterministic augmentation used when the
// external call fails.
func FallbackEnhancedPrompt(original, style string) string {
	return fmt.Sprintf("%s, high quality, detailed, %s style, professional photography", original, style)
}

// Enhance rewrites originalPrompt in the given style. A blank prompt fails
// fast with no external call. The result's EnhancedPrompt is non-empty for
// every non-blank input.
func (e *PromptEnhancer) Enhance(ctx context.Context, originalPrompt, style string) EnhancementResult {
	if style == "" {
		style = DefaultStyle
	}
	if strings.TrimSpace(originalPrompt) == "" {
		return EnhancementResult{
			Succeeded:      false,
			OriginalPrompt: originalPrompt,
			Style:          style,
			Diagnostic:     "prompt is empty",
			FailureReason:  ReasonEmptyPrompt,
		}
	}

	fallback := FallbackEnhancedPrompt(originalPrompt, style)

	if e.model == nil {
		log.Warn().Msg("Enhancer model not configured, using template fallback")
		return EnhancementResult{
			Succeeded:      false,
			EnhancedPrompt: fallback,
			OriginalPrompt: originalPrompt,
			Style:          style,
			Diagnostic:     "enhancement model unavailable, template fallback applied",
			FailureReason:  ReasonExternalCall,
		}
	}

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	rewritten, err := e.model.RewritePrompt(callCtx, originalPrompt, style)
	if err != nil {
		log.Warn().Err(err).Msg("Prompt enhancement failed, using template fallback")
		return EnhancementResult{
			Succeeded:      false,
			EnhancedPrompt: fallback,
			OriginalPrompt: originalPrompt,
			Style:          style,
			Diagnostic:     "enhancement call failed, template fallback applied",
			FailureReason:  ReasonExternalCall,
		}
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		log.Warn().Msg("Enhancement returned empty prompt, using template fallback")
		return EnhancementResult{
			Succeeded:      false,
			EnhancedPrompt: fallback,
			OriginalPrompt: originalPrompt,
			Style:          style,
			Diagnostic:     "enhancement returned empty response, template fallback applied",
			FailureReason:  ReasonExternalCall,
		}
	}

	if runes := []rune(rewritten); len(runes) > maxEnhancedLen {
		log.Warn().Int("len", len(runes)).Msg("Enhanced prompt over cap, truncating")
		rewritten = string(runes[:maxEnhancedLen])
	}

	log.Info().
		Int("enhanced_len", len(rewritten)).
		Str("style", style).
		Msg("Prompt enhanced")

	return EnhancementResult{
		Succeeded:      true,
		EnhancedPrompt: rewritten,
		OriginalPrompt: originalPrompt,
		Style:          style,
		Diagnostic:     "prompt enhanced",
	}
}
