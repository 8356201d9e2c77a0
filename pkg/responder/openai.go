// mailresponder
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o"

	DefaultSystemPrompt = `You are an administrative assistant answering e-mail on behalf of an office.
Reply politely and professionally with clear, specific information.
Answer in the language of the sender. When you are unsure, direct the sender
to the responsible department instead of guessing.`

	// DefaultThreadPrompt is used when the message quotes earlier mail.
	DefaultThreadPrompt = `
Sender: {{.Sender}}
Subject: {{.Subject}}

=== Current message (answer this) ===
{{.CurrentTurn}}

=== Earlier conversation (for reference) ===
{{.PriorHistory}}

Instructions:
- Identify what the sender wants in the current message and answer that.
- Ignore signatures, contact details and job titles.
- Use the earlier conversation to resolve references such as "this" or "that".
- If the context is clear, answer directly without asking for more information.
`

	DefaultSinglePrompt = `
Sender: {{.Sender}}
Subject: {{.Subject}}
Message:
{{.CurrentTurn}}

Write an appropriate reply to the message above.
`
)

type OpenAIConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
	SystemPrompt string
	// ThreadPrompt and SinglePrompt are text/templates over Request, used with
	// and without prior history.
	ThreadPrompt string
	SinglePrompt string
}

// OpenAI generates replies with the chat completions API.
type OpenAI struct {
	c      OpenAIConfig
	http   *http.Client
	thread *template.Template
	single *template.Template
}

func NewOpenAI(c OpenAIConfig) (*OpenAI, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("Missing OpenAI API key")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 90 * time.Second
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.ThreadPrompt == "" {
		c.ThreadPrompt = DefaultThreadPrompt
	}
	if c.SinglePrompt == "" {
		c.SinglePrompt = DefaultSinglePrompt
	}

	thread, err := parsePrompt("thread", c.ThreadPrompt)
	if err != nil {
		return nil, err
	}
	single, err := parsePrompt("single", c.SinglePrompt)
	if err != nil {
		return nil, err
	}
	return &OpenAI{
		c:      c,
		http:   &http.Client{Timeout: c.Timeout},
		thread: thread,
		single: single,
	}, nil
}

func parsePrompt(name, text string) (*template.Template, error) {
	t, err := template.New(name).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("Failed to parse %s prompt: %w", name, err)
	}
	if err := t.Execute(io.Discard, Request{}); err != nil {
		return nil, fmt.Errorf("Invalid %s prompt: %w", name, err)
	}
	return t, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (o *OpenAI) userPrompt(req Request) (string, error) {
	t := o.single
	if req.PriorHistory != "" {
		t = o.thread
	}
	var sb strings.Builder
	if err := t.Execute(&sb, req); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	prompt, err := o.userPrompt(req)
	if err != nil {
		return "", fmt.Errorf("Failed to render prompt: %w", err)
	}

	b, err := json.Marshal(chatCompletionRequest{
		Model: o.c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: o.c.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   o.c.MaxTokens,
		Temperature: o.c.Temperature,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.c.BaseURL+"/v1/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.c.APIKey)

	resp, err := o.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("Failed to call chat completions: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("Failed to read chat completion: %w", err)
	}

	var out chatCompletionResponse
	jsonErr := json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if jsonErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, string(raw))
	}
	if jsonErr != nil {
		return "", fmt.Errorf("Failed to decode chat completion: %w", jsonErr)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
