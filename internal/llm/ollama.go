package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default Ollama chat configuration.
const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

// OllamaConfig holds configuration for the Ollama generator.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaGenerator produces completions via a local Ollama server.
type OllamaGenerator struct {
	client  *http.Client
	baseURL string
	model   string
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// NewOllamaGenerator creates an Ollama generator, filling zero config fields
// with defaults.
func NewOllamaGenerator(cfg OllamaConfig) *OllamaGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OllamaGenerator{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

func (g *OllamaGenerator) send(ctx context.Context, messages []Message, cfg GenerationConfig, stream bool) (*http.Response, error) {
	reqBody := ollamaChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   stream,
	}
	if cfg.MaxTokens > 0 || cfg.Temperature > 0 || cfg.TopP > 0 {
		reqBody.Options = &ollamaOptions{
			NumPredict:  cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
		}
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

// Chat conducts a conversation and returns the full completion.
func (g *OllamaGenerator) Chat(ctx context.Context, messages []Message, cfg GenerationConfig) (string, error) {
	resp, err := g.send(ctx, messages, cfg, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return chatResp.Message.Content, nil
}

// ChatStream conducts a conversation, delivering each response fragment to fn
// as it arrives. Ollama streams newline-delimited JSON objects until a final
// one with done=true.
func (g *OllamaGenerator) ChatStream(ctx context.Context, messages []Message, cfg GenerationConfig, fn func(fragment string) error) error {
	resp, err := g.send(ctx, messages, cfg, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			if err := fn(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// Close releases resources. The HTTP client needs no explicit cleanup.
func (g *OllamaGenerator) Close() error {
	return nil
}
