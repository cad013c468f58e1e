// SPDX-License-Identifier: MIT
package llm

import (
	"net/http"
	"strings"
)

// ollamaProvider speaks the OpenAI-compatible endpoint Ollama and vLLM
// expose locally. No auth by default.
type ollamaProvider struct{}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) BuildURL(baseURL, _ string) string {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if !strings.HasSuffix(baseURL, "/chat/completions") && !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	return chatCompletionsURL(baseURL)
}

func (p *ollamaProvider) SetHeaders(req *http.Request, apiKey string) {
	// Local endpoints usually run unauthenticated. A key is still forwarded
	// when configured so vLLM or proxied deployments work.
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (p *ollamaProvider) BuildRequestBody(model string, messages []Message, opts Options) ([]byte, error) {
	return buildChatBody(model, messages, opts)
}

func (p *ollamaProvider) ParseResponse(body []byte) (*Response, error) {
	return parseChatResponse(body)
}
