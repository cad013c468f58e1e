// SPDX-License-Identifier: MIT
package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

func init() {
	mustRegister(&openAIProvider{})
	mustRegister(&ollamaProvider{})
}

// openAIRequest is the chat completions request shared by both providers.
type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
}

func buildChatBody(model string, messages []Message, opts Options) ([]byte, error) {
	req := openAIRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = &opts.MaxTokens
	}
	return json.Marshal(req)
}

func parseChatResponse(body []byte) (*Response, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewFatalError(fmt.Errorf("parse completion response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, NewFatalError(fmt.Errorf("completion response has no choices"))
	}
	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		Usage:        resp.Usage,
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}

// chatCompletionsURL normalizes a base URL to its chat completions endpoint.
func chatCompletionsURL(baseURL string) string {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// openAIProvider speaks the hosted OpenAI API.
type openAIProvider struct{}

func (p *openAIProvider) Name() string { return "openai" }

func (p *openAIProvider) BuildURL(baseURL, _ string) string {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return chatCompletionsURL(baseURL)
}

func (p *openAIProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (p *openAIProvider) BuildRequestBody(model string, messages []Message, opts Options) ([]byte, error) {
	return buildChatBody(model, messages, opts)
}

func (p *openAIProvider) ParseResponse(body []byte) (*Response, error) {
	return parseChatResponse(body)
}
