package cortex

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const completePath = "/api/v2/cortex/inference:complete"

type completeRequest struct {
	Model    string            `json:"model"`
	Messages []completeMessage `json:"messages"`
	Stream   bool              `json:"stream"`
}

type completeMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

type completeChoice struct {
	Message *completeMessage `json:"message,omitempty"`
	Delta   *completeDelta   `json:"delta,omitempty"`
}

type completeDelta struct {
	Content string `json:"content"`
	Text    string `json:"text"`
}

type completeResponse struct {
	Choices []completeChoice `json:"choices"`
}

// Complete runs prompt through a Cortex Complete model. Streaming is not
// requested, but an event-stream reply is still accepted and concatenated.
func (c *Client) Complete(ctx context.Context, model, prompt string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, completePath, completeRequest{
		Model:    model,
		Messages: []completeMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cortex complete: HTTP request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("cortex complete: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cortex complete: %w", parseAPIError(resp.StatusCode, body))
	}

	var text string
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		text, err = parseEventStream(body)
	} else {
		text, err = parseCompleteJSON(body)
	}
	if err != nil {
		return "", fmt.Errorf("cortex complete: %w", err)
	}
	return text, nil
}

func parseCompleteJSON(body []byte) (string, error) {
	var cr completeResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("response has no choices")
	}
	return choiceText(cr.Choices[0]), nil
}

// parseEventStream concatenates the deltas of an SSE completion stream.
func parseEventStream(body []byte) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk completeResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("unmarshal stream event: %w", err)
		}
		for _, ch := range chunk.Choices {
			sb.WriteString(choiceText(ch))
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read stream: %w", err)
	}
	return sb.String(), nil
}

func choiceText(ch completeChoice) string {
	if ch.Message != nil {
		return ch.Message.Content
	}
	if ch.Delta != nil {
		if ch.Delta.Content != "" {
			return ch.Delta.Content
		}
		return ch.Delta.Text
	}
	return ""
}
