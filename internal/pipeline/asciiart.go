package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ArtDescriber is the pair of external text-generation calls behind the
// ascii-art fallback.
type ArtDescriber interface {
	RenderAsciiArt(ctx context.Context, subject string) (string, error)
	DescribeScene(ctx context.Context, subject string) (string, error)
}

// AsciiArtFallback produces a character-grid rendering plus a short caption
// when image synthesis has failed. The two values are all-or-nothing: if
// either external call fails, both are replaced by placeholders.
type AsciiArtFallback struct {
	model   ArtDescriber
	timeout time.Duration
}

// NewAsciiArtFallback creates the fallback stage. model may be nil, in which
// case every call resolves to placeholders. timeout bounds each of the two
// external calls independently.
func NewAsciiArtFallback(model ArtDescriber, timeout time.Duration) *AsciiArtFallback {
	return &AsciiArtFallback{model: model, timeout: timeout}
}

// PlaceholderArt is the fixed character grid substituted when rendering fails.
func PlaceholderArt(prompt string) string {
	subject := strings.TrimSpace(prompt)
	if runes := []rune(subject); len(runes) > 32 {
		subject = string(runes[:32]) + "..."
	}
	return ".--------------------------------.\n" +
		"|                                |\n" +
		"|      image unavailable         |\n" +
		"|                                |\n" +
		"'--------------------------------'\n" +
		"  (" + subject + ")"
}

// PlaceholderCaption is the fixed caption substituted when description fails.
func PlaceholderCaption(prompt string) string {
	return fmt.Sprintf("We couldn't render %q right now. Please try again in a little while.", strings.TrimSpace(prompt))
}

// Describe renders prompt as ascii art with a caption. A blank prompt fails
// fast with no external calls. On any external failure both Art and Caption
// are the placeholder values, never a mix.
func (f *AsciiArtFallback) Describe(ctx context.Context, prompt string) AsciiArtResult {
	if strings.TrimSpace(prompt) == "" {
		return AsciiArtResult{
			Succeeded:     false,
			Art:           PlaceholderArt(prompt),
			Caption:       PlaceholderCaption(prompt),
			SourcePrompt:  prompt,
			FailureReason: ReasonEmptyPrompt,
		}
	}

	if f.model == nil {
		log.Warn().Msg("Ascii fallback model not configured, using placeholders")
		return f.placeholderResult(prompt, "ascii model unavailable")
	}

	art, err := f.callRender(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("Ascii art rendering failed, using placeholders")
		return f.placeholderResult(prompt, err.Error())
	}

	caption, err := f.callDescribe(ctx, prompt)
	if err != nil {
		// One real value plus one placeholder is never exposed.
		log.Warn().Err(err).Msg("Scene description failed, discarding art and using placeholders")
		return f.placeholderResult(prompt, err.Error())
	}

	log.Info().
		Int("art_lines", strings.Count(art, "\n")+1).
		Int("caption_len", len(caption)).
		Msg("Ascii fallback generated")

	return AsciiArtResult{
		Succeeded:    true,
		Art:          art,
		Caption:      caption,
		SourcePrompt: prompt,
	}
}

func (f *AsciiArtFallback) callRender(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := f.boundCtx(ctx)
	defer cancel()
	art, err := f.model.RenderAsciiArt(callCtx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(art) == "" {
		return "", fmt.Errorf("empty ascii art response")
	}
	return art, nil
}

func (f *AsciiArtFallback) callDescribe(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := f.boundCtx(ctx)
	defer cancel()
	caption, err := f.model.DescribeScene(callCtx, prompt)
	if err != nil {
		return "", err
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return "", fmt.Errorf("empty scene description response")
	}
	return caption, nil
}

func (f *AsciiArtFallback) boundCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout > 0 {
		return context.WithTimeout(ctx, f.timeout)
	}
	return context.WithCancel(ctx)
}

func (f *AsciiArtFallback) placeholderResult(prompt, reason string) AsciiArtResult {
	return AsciiArtResult{
		Succeeded:     false,
		Art:           PlaceholderArt(prompt),
		Caption:       PlaceholderCaption(prompt),
		SourcePrompt:  prompt,
		FailureReason: ReasonExternalCall + ": " + reason,
	}
}
