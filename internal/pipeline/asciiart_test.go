package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// fakeDescriber is an ArtDescriber with programmable responses.
type fakeDescriber struct {
	renderCalls   int
	describeCalls int
	art           string
	caption       string
	renderErr     error
	describeErr   error
}

func (f *fakeDescriber) RenderAsciiArt(ctx context.Context, subject string) (string, error) {
	f.renderCalls++
	if f.renderErr != nil {
		return "", f.renderErr
	}
	return f.art, nil
}

func (f *fakeDescriber) DescribeScene(ctx context.Context, subject string) (string, error) {
	f.describeCalls++
	if f.describeErr != nil {
		return "", f.describeErr
	}
	return f.caption, nil
}

func TestDescribe_BlankPromptNoCalls(t *testing.T) {
	model := &fakeDescriber{art: "art", caption: "caption"}
	f := NewAsciiArtFallback(model, time.Second)

	res := f.Describe(context.Background(), "  \n ")

	if res.Succeeded {
		t.Fatal("expected failure for blank prompt")
	}
	if res.FailureReason != ReasonEmptyPrompt {
		t.Errorf("failure reason = %q, want %q", res.FailureReason, ReasonEmptyPrompt)
	}
	if model.renderCalls+model.describeCalls != 0 {
		t.Errorf("external calls made for blank prompt: render=%d describe=%d", model.renderCalls, model.describeCalls)
	}
	if res.Art == "" || res.Caption == "" {
		t.Error("Art and Caption must be non-empty even on failure")
	}
}

func TestDescribe_Success(t *testing.T) {
	model := &fakeDescriber{art: " /\\_/\\\n( o.o )", caption: "A small cat sits among flowers."}
	f := NewAsciiArtFallback(model, time.Second)

	res := f.Describe(context.Background(), "a cat in a garden")

	if !res.Succeeded {
		t.Fatalf("expected success, got %s", res.FailureReason)
	}
	if res.Art != model.art || res.Caption != model.caption {
		t.Errorf("result = (%q, %q), want model output", res.Art, res.Caption)
	}
	if model.renderCalls != 1 || model.describeCalls != 1 {
		t.Errorf("calls = render %d, describe %d, want 1 each", model.renderCalls, model.describeCalls)
	}
}

func TestDescribe_Atomicity(t *testing.T) {
	tests := []struct {
		name        string
		renderErr   error
		describeErr error
	}{
		{"render fails", fmt.Errorf("render boom"), nil},
		{"describe fails", nil, fmt.Errorf("describe boom")},
		{"both fail", fmt.Errorf("render boom"), fmt.Errorf("describe boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeDescriber{
				art:         "real art",
				caption:     "real caption",
				renderErr:   tt.renderErr,
				describeErr: tt.describeErr,
			}
			f := NewAsciiArtFallback(model, time.Second)

			res := f.Describe(context.Background(), "a cat in a garden")

			if res.Succeeded {
				t.Fatal("expected failure when any call fails")
			}
			// Both values are placeholders: never a mix of real and
			// placeholder content.
			if res.Art != PlaceholderArt("a cat in a garden") {
				t.Errorf("Art = %q, want placeholder", res.Art)
			}
			if res.Caption != PlaceholderCaption("a cat in a garden") {
				t.Errorf("Caption = %q, want placeholder", res.Caption)
			}
			if res.Art == "" || res.Caption == "" {
				t.Error("placeholders must be non-empty")
			}
		})
	}
}

func TestDescribe_EmptyModelResponseIsFailure(t *testing.T) {
	model := &fakeDescriber{art: "  ", caption: "fine"}
	f := NewAsciiArtFallback(model, time.Second)

	res := f.Describe(context.Background(), "a fox")

	if res.Succeeded {
		t.Fatal("expected failure when render returns blank art")
	}
	if res.Caption != PlaceholderCaption("a fox") {
		t.Errorf("Caption = %q, want placeholder", res.Caption)
	}
}

func TestDescribe_NilModelUsesPlaceholders(t *testing.T) {
	f := NewAsciiArtFallback(nil, time.Second)

	res := f.Describe(context.Background(), "a fox")

	if res.Succeeded {
		t.Fatal("expected failure with nil model")
	}
	if res.Art != PlaceholderArt("a fox") || res.Caption != PlaceholderCaption("a fox") {
		t.Error("expected placeholder art and caption")
	}
}

func TestPlaceholderArtTruncatesSubjectOnRunes(t *testing.T) {
	prompt := strings.Repeat("桜", 40)
	art := PlaceholderArt(prompt)

	if !utf8.ValidString(art) {
		t.Errorf("placeholder art %q is not valid UTF-8", art)
	}
	if !strings.Contains(art, strings.Repeat("桜", 32)+"...") {
		t.Errorf("placeholder art %q missing 32-rune truncated subject", art)
	}
	if strings.Contains(art, strings.Repeat("桜", 33)) {
		t.Error("placeholder art carries more than 32 runes of the subject")
	}
}

func TestPlaceholdersReferencePrompt(t *testing.T) {
	art := PlaceholderArt("aurora over mountains")
	caption := PlaceholderCaption("aurora over mountains")
	if !strings.Contains(art, "aurora over mountains") {
		t.Errorf("placeholder art %q does not reference the prompt", art)
	}
	if !strings.Contains(caption, "aurora over mountains") {
		t.Errorf("placeholder caption %q does not reference the prompt", caption)
	}
}
