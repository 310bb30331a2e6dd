package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	unifiedgenai "google.golang.org/genai"
)

const artSystemPrompt = `You are an ASCII artist. Render the subject the user gives you as ASCII art.

Rules:
- At most 15 lines, at most 40 characters per line.
- Use only printable ASCII characters that align in a monospace font.
- Return ONLY the art, no code fences, no explanations.`

// RenderAsciiArt asks Gemini to draw the subject as a compact character grid.
// Returns an error when the client is unavailable, the call fails, or the
// response contains no text.
func (c *Client) RenderAsciiArt(ctx context.Context, subject string) (string, error) {
	if c.genaiClient == nil {
		return "", fmt.Errorf("genai client not initialized")
	}

	model := c.genaiClient.GenerativeModel(c.modelFlash)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(artSystemPrompt)},
		Role:  "system",
	}

	resp, err := model.GenerateContent(ctx, genai.Text(subject))
	if err != nil {
		return "", fmt.Errorf("gemini ascii art: %w", err)
	}

	var result strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				result.WriteString(string(text))
			}
		}
	}

	art := strings.Trim(result.String(), "\n")
	art = stripCodeFence(art)
	if strings.TrimSpace(art) == "" {
		return "", fmt.Errorf("gemini returned empty ascii art")
	}

	logGeminiResponse("RenderAsciiArt", art)
	return art, nil
}

// DescribeScene asks Gemini for a short vivid description of the image the
// subject would have produced.
func (c *Client) DescribeScene(ctx context.Context, subject string) (string, error) {
	if c.unifiedClient == nil {
		log.Warn().Msg("DescribeScene: unified client not configured")
		return "", fmt.Errorf("unified genai client not initialized")
	}

	prompt := "In 2-3 vivid sentences, describe the image that would be generated for this prompt. Write the description only, no preamble.\n\nPrompt: " + subject
	contents := unifiedgenai.Text(prompt)
	temp := float32(0.7)
	config := &unifiedgenai.GenerateContentConfig{
		Temperature: &temp,
	}

	result, err := c.unifiedClient.Models.GenerateContent(ctx, c.modelFlash, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini scene description: %w", err)
	}

	caption := strings.TrimSpace(result.Text())
	if caption == "" {
		return "", fmt.Errorf("gemini returned empty scene description")
	}

	logGeminiResponse("DescribeScene", caption)
	return caption, nil
}

// stripCodeFence removes a surrounding markdown code fence if the model added one.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:] // drop the language tag line
	}
	trimmed = strings.TrimSuffix(strings.TrimRight(trimmed, "\n "), "```")
	return strings.Trim(trimmed, "\n")
}
