package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/inklet-ai/inklet/internal/pipeline"
)

// Runner is the orchestrator surface the handlers need.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) pipeline.RunResult
	RunWith(ctx context.Context, req pipeline.Request, dispatcher pipeline.Dispatcher) pipeline.RunResult
}

// Journal records delivery outcomes after a run. May be nil.
type Journal interface {
	RecordOutcome(ctx context.Context, requestID string, outcome pipeline.DeliveryOutcome) error
}

// HealthChecker is implemented by journals backed by a live connection.
type HealthChecker interface {
	Health() error
}

// Defaults fills request fields the inbound surface left unset.
type Defaults struct {
	Style  string
	Width  int
	Height int
}

// Handler contains all HTTP handlers
type Handler struct {
	runner        Runner
	journal       Journal
	webhookSecret string
	defaults      Defaults

	// wg tracks in-flight webhook runs so Shutdown can drain them.
	wg sync.WaitGroup
}

// NewHandler creates a new handler. journal may be nil; webhookSecret empty
// disables the secret-token check.
func NewHandler(runner Runner, journal Journal, webhookSecret string, defaults Defaults) *Handler {
	if defaults.Style == "" {
		defaults.Style = pipeline.DefaultStyle
	}
	if defaults.Width == 0 {
		defaults.Width = pipeline.DefaultDimension
	}
	if defaults.Height == 0 {
		defaults.Height = pipeline.DefaultDimension
	}
	return &Handler{
		runner:        runner,
		journal:       journal,
		webhookSecret: webhookSecret,
		defaults:      defaults,
	}
}

// Wait blocks until all in-flight webhook runs have finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// telegramUpdate is the inbound webhook envelope. Only the fields the
// pipeline needs are decoded; everything else in the update is ignored.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// commandPrefixes are stripped from the start of an inbound message before it
// becomes the prompt.
var commandPrefixes = []string{"/imagine", "/image", "/art"}

// stripCommand removes a leading bot command (with optional @botname suffix)
// from the message text.
func stripCommand(text string) string {
	trimmed := strings.TrimSpace(text)
	for _, prefix := range commandPrefixes {
		if !strings.HasPrefix(trimmed, prefix) {
			continue
		}
		rest := trimmed[len(prefix):]
		if strings.HasPrefix(rest, "@") {
			if idx := strings.IndexAny(rest, " \t\n"); idx >= 0 {
				rest = rest[idx:]
			} else {
				rest = ""
			}
		}
		if rest == "" || strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, "\n") {
			return strings.TrimSpace(rest)
		}
	}
	return trimmed
}

// TelegramWebhook handles POST /webhook/telegram. It always answers 200 for
// well-formed requests so Telegram does not re-deliver; the pipeline itself
// runs asynchronously. A missing or unparsable message text is treated as an
// empty prompt and rejected downstream by validation.
func (h *Handler) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret != "" {
		got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			log.Warn().Msg("Webhook secret mismatch")
			writeJSONError(w, http.StatusUnauthorized, "invalid secret token")
			return
		}
	}

	var update telegramUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Warn().Err(err).Msg("Unparsable webhook envelope, ignoring update")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	if update.Message == nil || update.Message.Chat.ID == 0 {
		log.Warn().Int64("update_id", update.UpdateID).Msg("Update without message or chat, ignoring")
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	req := pipeline.Request{
		ID:             uuid.New(),
		OriginalPrompt: stripCommand(update.Message.Text),
		Style:          h.defaults.Style,
		Width:          h.defaults.Width,
		Height:         h.defaults.Height,
		Destination:    strconv.FormatInt(update.Message.Chat.ID, 10),
	}

	log.Info().
		Str("request_id", req.ID.String()).
		Int64("update_id", update.UpdateID).
		Str("chat_id", req.Destination).
		Msg("Webhook update accepted")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		// The webhook response has already been sent; the run gets its own
		// lifetime, not the inbound request's.
		res := h.runner.Run(context.Background(), req)
		h.recordOutcome(req.ID.String(), res.Outcome)
	}()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":         true,
		"request_id": req.ID.String(),
	})
}

// renderRequest is the REST body for POST /v1/render.
type renderRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// renderResponse mirrors the final pipeline payload for REST callers.
type renderResponse struct {
	Success     bool   `json:"success"`
	RequestID   string `json:"request_id"`
	ImageBase64 string `json:"image_base64,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	AsciiArt    string `json:"ascii_art,omitempty"`
	Description string `json:"description,omitempty"`
	Message     string `json:"message"`
	Error       string `json:"error,omitempty"`
}

// RenderImage handles POST /v1/render. The pipeline runs synchronously with a
// capture dispatcher and the payload comes back in the response body.
func (h *Handler) RenderImage(w http.ResponseWriter, r *http.Request) {
	var body renderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if body.Style == "" {
		body.Style = h.defaults.Style
	}
	if body.Width == 0 {
		body.Width = h.defaults.Width
	}
	if body.Height == 0 {
		body.Height = h.defaults.Height
	}

	req := pipeline.Request{
		ID:             uuid.New(),
		OriginalPrompt: body.Prompt,
		Style:          body.Style,
		Width:          body.Width,
		Height:         body.Height,
		Destination:    "api",
	}

	capture := &pipeline.CaptureDispatcher{}
	res := h.runner.RunWith(r.Context(), req, capture)
	h.recordOutcome(req.ID.String(), res.Outcome)

	resp := renderResponse{RequestID: req.ID.String()}
	switch {
	case res.ValidationFailed:
		resp.Message = "prompt must not be empty"
		resp.Error = pipeline.ReasonEmptyPrompt
		writeJSON(w, http.StatusBadRequest, resp)
		return
	case res.Image != nil && res.Image.Succeeded:
		resp.Success = true
		resp.ImageBase64 = res.Image.ImageBase64
		resp.MimeType = res.Image.MimeType
		resp.ImageURL = res.ArchiveURL
		resp.Message = res.Image.Diagnostic
	case res.Art != nil:
		resp.Success = true
		resp.AsciiArt = res.Art.Art
		resp.Description = res.Art.Caption
		resp.Message = "image generation failed, ascii fallback returned"
		if res.Image != nil {
			resp.Error = res.Image.FailureReason
		}
	default:
		resp.Message = "pipeline produced no payload"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Healthz handles GET /healthz. A database-backed journal is pinged too, so
// a dead journal connection surfaces here instead of as silent insert errors.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if hc, ok := h.journal.(HealthChecker); ok {
		if err := hc.Health(); err != nil {
			log.Error().Err(err).Msg("Journal database unhealthy")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  "journal unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) recordOutcome(requestID string, outcome pipeline.DeliveryOutcome) {
	if h.journal == nil {
		return
	}
	if err := h.journal.RecordOutcome(context.Background(), requestID, outcome); err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Recording delivery outcome failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
