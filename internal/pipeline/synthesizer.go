package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// maxPromptLen is the longest prompt forwarded to the image service.
	maxPromptLen = 500
	// minDimension and maxDimension bound requested image dimensions.
	minDimension = 256
	maxDimension = 1024
	// DefaultDimension is used when a request leaves width or height unset.
	DefaultDimension = 1024

	defaultImageEndpoint = "https://image.pollinations.ai"
	userAgent            = "inklet-bot/1.0"
)

// ImageSynthesizer calls the image-generation HTTP endpoint under a timeout.
// The shared http.Client must be safe for concurrent use.
type ImageSynthesizer struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

// NewImageSynthesizer creates a synthesizer against the given base endpoint.
// A nil httpClient falls back to http.DefaultClient; a zero timeout leaves
// the caller's context in charge.
func NewImageSynthesizer(endpoint string, httpClient *http.Client, timeout time.Duration) *ImageSynthesizer {
	if endpoint == "" {
		endpoint = defaultImageEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ImageSynthesizer{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: httpClient,
		timeout:    timeout,
	}
}

// clampDimension constrains a requested dimension into [minDimension, maxDimension].
func clampDimension(v int) int {
	if v < minDimension {
		return minDimension
	}
	if v > maxDimension {
		return maxDimension
	}
	return v
}

// Synthesize requests an image for the prompt at the given dimensions.
// Blank prompts fail fast with no outbound call. Overlong prompts are
// truncated to maxPromptLen; dimensions are clamped. Each call embeds a fresh
// seed token so repeated identical inputs are not served identical images.
func (s *ImageSynthesizer) Synthesize(ctx context.Context, prompt string, width, height int) ImageResult {
	if strings.TrimSpace(prompt) == "" {
		return ImageResult{
			Succeeded:     false,
			SourcePrompt:  prompt,
			Diagnostic:    "prompt is empty",
			FailureReason: ReasonEmptyPrompt,
		}
	}

	if runes := []rune(prompt); len(runes) > maxPromptLen {
		log.Warn().
			Int("prompt_len", len(runes)).
			Int("max", maxPromptLen).
			Msg("Prompt over limit, truncating before synthesis")
		prompt = string(runes[:maxPromptLen])
	}

	w := clampDimension(width)
	h := clampDimension(height)
	if w != width || h != height {
		log.Warn().
			Int("width", width).Int("height", height).
			Int("clamped_width", w).Int("clamped_height", h).
			Msg("Dimensions out of range, clamped")
	}

	seed := uuid.New().ID()
	reqURL := fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&seed=%d",
		s.endpoint, url.PathEscape(prompt), w, h, seed)

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return ImageResult{
			Succeeded:     false,
			SourcePrompt:  prompt,
			SourceURL:     reqURL,
			Diagnostic:    fmt.Sprintf("building request failed: %v", err),
			FailureReason: ReasonExternalCall,
		}
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return s.callFailure(callCtx, prompt, reqURL, err, time.Since(start))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("url", reqURL).
			Msg("Image service returned non-success status")
		return ImageResult{
			Succeeded:     false,
			SourcePrompt:  prompt,
			SourceURL:     reqURL,
			Diagnostic:    fmt.Sprintf("image service returned HTTP %d", resp.StatusCode),
			FailureReason: HTTPErrorReason(resp.StatusCode),
		}
	}

	mimeType := strings.TrimSpace(strings.SplitN(resp.Header.Get("Content-Type"), ";", 2)[0])
	if !strings.HasPrefix(mimeType, "image/") {
		log.Warn().
			Str("content_type", mimeType).
			Str("url", reqURL).
			Msg("Image service returned non-image content")
		return ImageResult{
			Succeeded:     false,
			SourcePrompt:  prompt,
			SourceURL:     reqURL,
			Diagnostic:    fmt.Sprintf("expected image content, got %q", mimeType),
			FailureReason: InvalidContentTypeReason(mimeType),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return s.callFailure(callCtx, prompt, reqURL, err, time.Since(start))
	}

	log.Info().
		Int("image_size_bytes", len(data)).
		Str("mime_type", mimeType).
		Int("width", w).Int("height", h).
		Dur("elapsed", time.Since(start)).
		Msg("Image synthesized")

	return ImageResult{
		Succeeded:    true,
		ImageBase64:  base64.StdEncoding.EncodeToString(data),
		MimeType:     mimeType,
		SourcePrompt: prompt,
		SourceURL:    reqURL,
		Diagnostic:   fmt.Sprintf("image generated (%d bytes, %s)", len(data), mimeType),
	}
}

// callFailure classifies a transport-level failure, distinguishing the
// timeout case from other network errors.
func (s *ImageSynthesizer) callFailure(ctx context.Context, prompt, reqURL string, err error, elapsed time.Duration) ImageResult {
	reason := ReasonExternalCall
	diag := fmt.Sprintf("image request failed: %v", err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		reason = ReasonTimeout
		diag = fmt.Sprintf("image request exceeded %s timeout", s.timeout)
	}
	log.Warn().
		Err(err).
		Str("url", reqURL).
		Dur("elapsed", elapsed).
		Str("reason", reason).
		Msg("Image synthesis call failed")
	return ImageResult{
		Succeeded:     false,
		SourcePrompt:  prompt,
		SourceURL:     reqURL,
		Diagnostic:    diag,
		FailureReason: reason,
	}
}
