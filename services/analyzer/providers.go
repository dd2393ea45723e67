package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	defaultOllamaEndpoint = "http://localhost:11434"
	requestTimeout        = 60 * time.Second
	temperature           = 0.2
	maxTokens             = 400
)

// OpenAIProvider calls the chat completions API
type OpenAIProvider struct {
	Model    string
	APIKey   string
	Endpoint string
	client   *http.Client
}

// NewOpenAIProvider creates an OpenAI provider. An empty endpoint uses the
// public API.
func NewOpenAIProvider(model, apiKey, endpoint string) *OpenAIProvider {
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	return &OpenAIProvider{
		Model:    model,
		APIKey:   apiKey,
		Endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: requestTimeout},
	}
}

// Name returns "openai"
func (o *OpenAIProvider) Name() string { return "openai" }

// Generate sends prompt as a single user message and asks for a JSON object
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if o.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	payload := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":      maxTokens,
		"temperature":     temperature,
		"response_format": map[string]string{"type": "json_object"},
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}
	if err := postJSON(ctx, o.client, o.Endpoint+"/chat/completions", headers, payload, &result); err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}
	return result.Choices[0].Message.Content, nil
}

// OllamaProvider calls a local Ollama server
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaProvider creates an Ollama provider
func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaEndpoint
	}
	return &OllamaProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Name returns "ollama"
func (o *OllamaProvider) Name() string { return "ollama" }

// Generate uses the chat endpoint with JSON output format
func (o *OllamaProvider) Generate(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model": o.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"num_predict": maxTokens,
			"temperature": temperature,
		},
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/api/chat", nil, payload, &result); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return result.Message.Content, nil
}

// NewProvider picks a provider by name
func NewProvider(name, model, endpoint, apiKey string) (Provider, error) {
	switch strings.ToLower(name) {
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAIProvider(model, apiKey, endpoint), nil
	case "ollama":
		return NewOllamaProvider(model, endpoint), nil
	default:
		return nil, fmt.Errorf("unsupported analyzer provider: %s", name)
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
