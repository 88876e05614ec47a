// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"text/template"

	"github.com/pdiddy/libshelf/internal/httputil"
	"github.com/pdiddy/libshelf/pkg/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

// claudeAPIURL is the Claude Messages endpoint. Package-level var for test
// substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ErrNoAnswer means the model replied but named no publisher.
var ErrNoAnswer = errors.New("model returned no publisher name")

// ClaudeNormalizer asks the Claude API for the canonical form of a raw
// publisher string.
type ClaudeNormalizer struct {
	APIKey     string
	Model      string
	Prompt     *template.Template
	MaxRetries int
	Client     *http.Client
	Logger     *slog.Logger
}

// NewClaudeNormalizer builds a normalizer from cfg, loading the custom
// prompt file when one is set.
func NewClaudeNormalizer(cfg types.AIConfig, logger *slog.Logger) (*ClaudeNormalizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("AI normalization enabled but no Anthropic API key configured")
	}
	prompt, err := LoadPrompt(cfg.PromptFile)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &ClaudeNormalizer{
		APIKey:     cfg.APIKey,
		Model:      model,
		Prompt:     prompt,
		MaxRetries: cfg.MaxRetries,
		Client:     &http.Client{},
		Logger:     logger,
	}, nil
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Normalize returns the canonical publisher name for raw.
func (c *ClaudeNormalizer) Normalize(ctx context.Context, raw string) (string, error) {
	tmpl := c.Prompt
	if tmpl == nil {
		var err error
		if tmpl, err = LoadPrompt(""); err != nil {
			return "", err
		}
	}
	prompt, err := renderPrompt(tmpl, raw)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}

	body, err := json.Marshal(claudeRequest{
		Model:     c.Model,
		MaxTokens: 64,
		Messages:  []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := httputil.DoWithRetry(ctx, c.Client, req, c.MaxRetries, c.Logger)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}
	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		if name := parseAnswer(block.Text); name != "" {
			return name, nil
		}
		return "", ErrNoAnswer
	}
	return "", errors.New("no text content in Claude API response")
}
