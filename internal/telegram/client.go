package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/inklet-ai/inklet/internal/pipeline"
)

const defaultAPIURL = "https://api.telegram.org"

// Client delivers replies through the Telegram Bot API. It implements
// pipeline.Dispatcher and is safe for concurrent use.
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

// NewClient creates a Telegram client. apiURL overrides the Bot API base for
// tests and proxies; empty uses the public endpoint.
func NewClient(apiURL, token string, httpClient *http.Client) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// apiResponse is the Bot API envelope shared by all methods.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Deliver sends the reply to the destination chat: sendPhoto when it carries
// an image, sendMessage otherwise. Transport failure is reported through the
// outcome, never as a panic or escaping error.
func (c *Client) Deliver(ctx context.Context, destination string, reply pipeline.Reply) pipeline.DeliveryOutcome {
	outcome := pipeline.DeliveryOutcome{
		Destination:    destination,
		PayloadPreview: reply.Preview(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	var err error
	if reply.HasImage() {
		err = c.sendPhoto(ctx, destination, reply)
	} else {
		err = c.sendMessage(ctx, destination, reply.Text)
	}
	if err != nil {
		log.Error().
			Err(err).
			Str("chat_id", destination).
			Bool("has_image", reply.HasImage()).
			Msg("Telegram delivery failed")
		return outcome
	}

	log.Info().
		Str("chat_id", destination).
		Bool("has_image", reply.HasImage()).
		Str("preview", outcome.PayloadPreview).
		Msg("Reply delivered")
	outcome.Delivered = true
	return outcome
}

func (c *Client) sendMessage(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshaling sendMessage payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) sendPhoto(ctx context.Context, chatID string, reply pipeline.Reply) error {
	data, err := (pipeline.ImageResult{ImageBase64: reply.ImageBase64}).Bytes()
	if err != nil {
		return fmt.Errorf("decoding image payload: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", chatID); err != nil {
		return fmt.Errorf("writing chat_id field: %w", err)
	}
	if reply.Text != "" {
		if err := writer.WriteField("caption", reply.Text); err != nil {
			return fmt.Errorf("writing caption field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("photo", "image"+extensionFor(reply.MimeType))
	if err != nil {
		return fmt.Errorf("creating photo part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("writing photo bytes: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("building sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("reading telegram response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("telegram returned HTTP %d with unparsable body", resp.StatusCode)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram API error (HTTP %d): %s", resp.StatusCode, apiResp.Description)
	}
	return nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
