package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chadiek/preapproval-line/internal/convo"
)

// CerebrasClient is the alternative reply generator, selected with
// LLM_PROVIDER=cerebras. The API speaks the same chat-completions dialect
// as OpenAI, so the request and response shapes are shared.
type CerebrasClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	Endpoint   string
}

func NewCerebrasClient(apiKey, model string) *CerebrasClient {
	if model == "" {
		model = "llama-3.3-70b"
	}
	return &CerebrasClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		Endpoint:   "https://api.cerebras.ai/v1/chat/completions",
	}
}

// Respond generates the next assistant reply for the given conversation
// turns.
func (c *CerebrasClient) Respond(ctx context.Context, turns []convo.Turn) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("cerebras api key missing")
	}

	messages := make([]chatMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, chatMessage{Role: string(t.Role), Content: t.Content})
	}

	reqBody, _ := json.Marshal(chatCompletionsRequest{Model: c.Model, Messages: messages})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("cerebras error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("cerebras: empty choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
