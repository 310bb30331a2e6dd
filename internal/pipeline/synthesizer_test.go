package pipeline

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\nfakeimagedata")

// imageServer returns an httptest server that serves pngBytes and records the
// last request URL.
func imageServer(t *testing.T, hits *int32, lastURL *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if lastURL != nil {
			*lastURL = r.URL.String()
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	}))
}

func TestSynthesize_Success(t *testing.T) {
	var hits int32
	var lastURL string
	srv := imageServer(t, &hits, &lastURL)
	defer srv.Close()

	s := NewImageSynthesizer(srv.URL, srv.Client(), 5*time.Second)
	res := s.Synthesize(context.Background(), "a cat in a garden", 800, 600)

	if !res.Succeeded {
		t.Fatalf("expected success, got %s (%s)", res.FailureReason, res.Diagnostic)
	}
	if res.MimeType != "image/png" {
		t.Errorf("mime type = %q, want image/png", res.MimeType)
	}
	if !strings.HasPrefix(res.MimeType, "image/") {
		t.Errorf("mime type %q does not begin with image/", res.MimeType)
	}
	decoded, err := base64.StdEncoding.DecodeString(res.ImageBase64)
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	if string(decoded) != string(pngBytes) {
		t.Error("decoded payload does not match served bytes")
	}
	if res.SourceURL == "" {
		t.Error("source URL not recorded")
	}
	if !strings.Contains(lastURL, "width=800") || !strings.Contains(lastURL, "height=600") {
		t.Errorf("request URL %q missing dimensions", lastURL)
	}
	if !strings.Contains(lastURL, "seed=") {
		t.Errorf("request URL %q missing seed token", lastURL)
	}
}

func TestSynthesize_BlankPromptNoCall(t *testing.T) {
	var hits int32
	srv := imageServer(t, &hits, nil)
	defer srv.Close()

	s := NewImageSynthesizer(srv.URL, srv.Client(), time.Second)
	res := s.Synthesize(context.Background(), "   ", 1024, 1024)

	if res.Succeeded {
		t.Fatal("expected failure for blank prompt")
	}
	if res.FailureReason != ReasonEmptyPrompt {
		t.Errorf("failure reason = %q, want %q", res.FailureReason, ReasonEmptyPrompt)
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("server hit %d times for blank prompt, want 0", hits)
	}
}

func TestSynthesize_DimensionClamping(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"both in range", 512, 768, 512, 768},
		{"too small", 10, 100, 256, 256},
		{"too large", 4096, 2048, 1024, 1024},
		{"zero", 0, 0, 256, 256},
		{"negative", -50, -1, 256, 256},
		{"mixed", 100, 5000, 256, 1024},
		{"bounds exactly", 256, 1024, 256, 1024},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			var lastURL string
			srv := imageServer(t, &hits, &lastURL)
			defer srv.Close()

			s := NewImageSynthesizer(srv.URL, srv.Client(), time.Second)
			res := s.Synthesize(context.Background(), "a fox", tt.width, tt.height)
			if !res.Succeeded {
				t.Fatalf("unexpected failure: %s", res.Diagnostic)
			}

			u, err := url.Parse(lastURL)
			if err != nil {
				t.Fatalf("parsing request URL: %v", err)
			}
			gotW, _ := strconv.Atoi(u.Query().Get("width"))
			gotH, _ := strconv.Atoi(u.Query().Get("height"))
			if gotW != tt.wantW || gotH != tt.wantH {
				t.Errorf("clamped dims = %dx%d, want %dx%d", gotW, gotH, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestSynthesize_PromptTruncatedTo500(t *testing.T) {
	var hits int32
	var lastURL string
	srv := imageServer(t, &hits, &lastURL)
	defer srv.Close()

	prompt := strings.Repeat("p", 650)
	s := NewImageSynthesizer(srv.URL, srv.Client(), time.Second)
	res := s.Synthesize(context.Background(), prompt, 512, 512)
	if !res.Succeeded {
		t.Fatalf("unexpected failure: %s", res.Diagnostic)
	}

	u, err := url.Parse(lastURL)
	if err != nil {
		t.Fatalf("parsing request URL: %v", err)
	}
	sent := strings.TrimPrefix(u.Path, "/prompt/")
	if got := len(sent); got != maxPromptLen {
		t.Errorf("forwarded prompt length = %d, want exactly %d", got, maxPromptLen)
	}
	if got := len([]rune(res.SourcePrompt)); got != maxPromptLen {
		t.Errorf("SourcePrompt length = %d, want %d", got, maxPromptLen)
	}
}

func TestSynthesize_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewImageSynthesizer(srv.URL, srv.Client(), time.Second)
	res := s.Synthesize(context.Background(), "a fox", 512, 512)

	if res.Succeeded {
		t.Fatal("expected failure on HTTP 503")
	}
	if res.FailureReason != HTTPErrorReason(http.StatusServiceUnavailable) {
		t.Errorf("failure reason = %q, want %q", res.FailureReason, HTTPErrorReason(503))
	}
}

func TestSynthesize_InvalidContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	s := NewImageSynthesizer(srv.URL, srv.Client(), time.Second)
	res := s.Synthesize(context.Background(), "a fox", 512, 512)

	if res.Succeeded {
		t.Fatal("expected failure on non-image content type")
	}
	if res.FailureReason != InvalidContentTypeReason("text/html") {
		t.Errorf("failure reason = %q, want %q", res.FailureReason, InvalidContentTypeReason("text/html"))
	}
}

func TestSynthesize_TimeoutCancelsCall(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := NewImageSynthesizer(srv.URL, srv.Client(), 100*time.Millisecond)

	start := time.Now()
	res := s.Synthesize(context.Background(), "a fox", 512, 512)
	elapsed := time.Since(start)

	if res.Succeeded {
		t.Fatal("expected failure on timeout")
	}
	if res.FailureReason != ReasonTimeout {
		t.Errorf("failure reason = %q, want %q", res.FailureReason, ReasonTimeout)
	}
	// The call must return shortly after the configured bound, not hang.
	if elapsed > 2*time.Second {
		t.Errorf("synthesize took %s, expected return near the 100ms bound", elapsed)
	}
}
