package telegram

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inklet-ai/inklet/internal/pipeline"
)

func botAPIServer(t *testing.T, handler func(method string, r *http.Request) (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 2 || !strings.HasPrefix(parts[0], "bot") {
			t.Errorf("unexpected path %q", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		status, body := handler(parts[1], r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func TestDeliver_TextMessage(t *testing.T) {
	var gotChatID, gotText string
	srv := botAPIServer(t, func(method string, r *http.Request) (int, string) {
		if method != "sendMessage" {
			t.Errorf("method = %q, want sendMessage", method)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding sendMessage body: %v", err)
			return http.StatusBadRequest, `{"ok":false}`
		}
		gotChatID = payload["chat_id"]
		gotText = payload["text"]
		return http.StatusOK, `{"ok":true}`
	})
	defer srv.Close()

	c := NewClient(srv.URL, "token123", srv.Client())
	outcome := c.Deliver(context.Background(), "42", pipeline.Reply{Text: "hello there"})

	if !outcome.Delivered {
		t.Fatal("expected delivery")
	}
	if gotChatID != "42" || gotText != "hello there" {
		t.Errorf("sent (%q, %q), want (42, hello there)", gotChatID, gotText)
	}
	if outcome.Destination != "42" {
		t.Errorf("destination = %q, want 42", outcome.Destination)
	}
	if outcome.Timestamp == "" {
		t.Error("timestamp not set")
	}
}

func TestDeliver_PhotoMultipart(t *testing.T) {
	imageBytes := []byte("fake-png-bytes")
	var gotChatID, gotCaption string
	var gotPhoto []byte
	srv := botAPIServer(t, func(method string, r *http.Request) (int, string) {
		if method != "sendPhoto" {
			t.Errorf("method = %q, want sendPhoto", method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parsing multipart form: %v", err)
			return http.StatusBadRequest, `{"ok":false}`
		}
		gotChatID = r.FormValue("chat_id")
		gotCaption = r.FormValue("caption")
		file, _, err := r.FormFile("photo")
		if err != nil {
			t.Errorf("reading photo part: %v", err)
			return http.StatusBadRequest, `{"ok":false}`
		}
		defer file.Close()
		gotPhoto, _ = io.ReadAll(file)
		return http.StatusOK, `{"ok":true}`
	})
	defer srv.Close()

	c := NewClient(srv.URL, "token123", srv.Client())
	reply := pipeline.Reply{
		Text:        "a cat in a garden",
		ImageBase64: base64.StdEncoding.EncodeToString(imageBytes),
		MimeType:    "image/png",
	}
	outcome := c.Deliver(context.Background(), "42", reply)

	if !outcome.Delivered {
		t.Fatal("expected delivery")
	}
	if gotChatID != "42" || gotCaption != "a cat in a garden" {
		t.Errorf("sent chat_id=%q caption=%q", gotChatID, gotCaption)
	}
	if string(gotPhoto) != string(imageBytes) {
		t.Error("uploaded photo bytes do not match the payload")
	}
	if !strings.HasPrefix(outcome.PayloadPreview, "[image] ") {
		t.Errorf("preview %q does not mark the image payload", outcome.PayloadPreview)
	}
}

func TestDeliver_APIErrorReportedInOutcome(t *testing.T) {
	srv := botAPIServer(t, func(method string, r *http.Request) (int, string) {
		return http.StatusBadRequest, `{"ok":false,"description":"chat not found"}`
	})
	defer srv.Close()

	c := NewClient(srv.URL, "token123", srv.Client())
	outcome := c.Deliver(context.Background(), "42", pipeline.Reply{Text: "hello"})

	if outcome.Delivered {
		t.Fatal("expected failed delivery")
	}
	if outcome.Destination != "42" || outcome.Timestamp == "" {
		t.Errorf("outcome fields incomplete: %+v", outcome)
	}
}

func TestDeliver_CorruptImagePayload(t *testing.T) {
	srv := botAPIServer(t, func(method string, r *http.Request) (int, string) {
		t.Error("no API call expected for a corrupt payload")
		return http.StatusOK, `{"ok":true}`
	})
	defer srv.Close()

	c := NewClient(srv.URL, "token123", srv.Client())
	outcome := c.Deliver(context.Background(), "42", pipeline.Reply{
		ImageBase64: "%%% not base64 %%%",
		MimeType:    "image/png",
	})

	if outcome.Delivered {
		t.Fatal("expected failed delivery for corrupt image payload")
	}
}
