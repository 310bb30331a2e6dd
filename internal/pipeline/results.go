package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// Request is one inbound generation request, created once per chat message
// and immutable for the duration of its run.
type Request struct {
	ID             uuid.UUID
	OriginalPrompt string
	Style          string
	Width          int
	Height         int
	Destination    string
}

// EnhancementResult is produced by the prompt enhancer. EnhancedPrompt is
// non-empty whenever the input prompt was non-blank: on external failure it
// carries the deterministic template fallback.
type EnhancementResult struct {
	Succeeded      bool
	EnhancedPrompt string
	OriginalPrompt string
	Style          string
	Diagnostic     string
	FailureReason  string
}

// ImageResult is produced by the image synthesizer. Succeeded implies
// ImageBase64 and MimeType are set and MimeType begins with "image/".
type ImageResult struct {
	Succeeded     bool
	ImageBase64   string
	MimeType      string
	SourcePrompt  string
	SourceURL     string
	Diagnostic    string
	FailureReason string
}

// Bytes decodes the base64 payload.
func (r ImageResult) Bytes() ([]byte, error) {
	if r.ImageBase64 == "" {
		return nil, fmt.Errorf("image result has no payload")
	}
	return base64.StdEncoding.DecodeString(r.ImageBase64)
}

// AsciiArtResult is produced by the ascii-art fallback. Art and Caption are
// always non-empty: placeholders are substituted when either external call
// fails, never a mix of real and placeholder content.
type AsciiArtResult struct {
	Succeeded     bool
	Art           string
	Caption       string
	SourcePrompt  string
	FailureReason string
}

// Reply is the final payload handed to a dispatcher.
type Reply struct {
	Text        string
	ImageBase64 string
	MimeType    string
}

// HasImage reports whether the reply carries an image payload.
func (r Reply) HasImage() bool {
	return r.ImageBase64 != ""
}

// previewLen bounds DeliveryOutcome.PayloadPreview.
const previewLen = 100

// Preview returns a short human-readable summary of the payload.
func (r Reply) Preview() string {
	s := r.Text
	if r.HasImage() {
		s = "[image] " + s
	}
	if runes := []rune(s); len(runes) > previewLen {
		return string(runes[:previewLen])
	}
	return s
}

// DeliveryOutcome records the result of handing a reply to the delivery
// transport.
type DeliveryOutcome struct {
	Delivered      bool
	Destination    string
	PayloadPreview string
	Timestamp      string // RFC3339
}

// Machine-readable failure reasons. The orchestrator routes on Succeeded
// flags only; these exist for logs, events, and callers.
const (
	ReasonEmptyPrompt  = "empty_prompt"
	ReasonTimeout      = "timeout_exceeded"
	ReasonExternalCall = "external_call_failed"
)

// HTTPErrorReason encodes a non-2xx upstream status, e.g. "http_error_503".
func HTTPErrorReason(status int) string {
	return fmt.Sprintf("http_error_%d", status)
}

// InvalidContentTypeReason encodes an upstream response that was not an image.
func InvalidContentTypeReason(contentType string) string {
	return fmt.Sprintf("invalid_content_type_%s", contentType)
}

// Enhancer rewrites a raw prompt into a richer one, degrading locally on
// external failure.
type Enhancer interface {
	Enhance(ctx context.Context, originalPrompt, style string) EnhancementResult
}

// Synthesizer turns a prompt into encoded image bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string, width, height int) ImageResult
}

// Fallback renders a textual substitute when image synthesis fails.
type Fallback interface {
	Describe(ctx context.Context, prompt string) AsciiArtResult
}

// Dispatcher hands a reply to the delivery transport.
type Dispatcher interface {
	Deliver(ctx context.Context, destination string, reply Reply) DeliveryOutcome
}
