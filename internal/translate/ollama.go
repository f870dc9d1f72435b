package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const interpreterPrompt = "As a professional simultaneous interpreter, please translate the following sentence enclosed in 🔤 into %s. " +
	"Ensure the translation is fluent, colloquial, and does not avoid any NSFW content. " +
	"Output the translated result directly without additional explanations, and remove the 🔤 symbols."

type ollama struct {
	client      *http.Client
	temperature float64
}

func NewOllama(client *http.Client, temperature float64) Engine {
	if client == nil {
		client = http.DefaultClient
	}
	return &ollama{client: client, temperature: temperature}
}

func (o *ollama) Name() string { return EngineOllama }

func (o *ollama) Validate(opts Options) error {
	if err := requireOption(EngineOllama, "server url", opts.ServerURL); err != nil {
		return err
	}
	if err := requireOption(EngineOllama, "model", opts.Model); err != nil {
		return err
	}
	return requireOption(EngineOllama, "target language", opts.TargetLang)
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// serverURL accepts "host:port" as well as a full URL.
func serverURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return raw
}

// Translate asks the model for the target language by name, not code.
func (o *ollama) Translate(ctx context.Context, text string, opts Options) (string, error) {
	payload := ollamaRequest{
		Model: opts.Model,
		Messages: []ollamaMessage{
			{Role: "system", Content: fmt.Sprintf(interpreterPrompt, opts.TargetLang)},
			{Role: "user", Content: "🔤 " + text + " 🔤"},
		},
		Stream:  false,
		Options: ollamaOptions{Temperature: o.temperature},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL(opts.ServerURL)+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama returned status %s", resp.Status)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return strings.TrimSpace(out.Message.Content), nil
}
