// SPDX-License-Identifier: MIT
package llm

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterProviderDuplicate(t *testing.T) {
	err := RegisterProvider(&openAIProvider{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestProviderNames(t *testing.T) {
	names := ProviderNames()
	assert.Contains(t, names, "openai")
	assert.Contains(t, names, "ollama")
}

func TestOpenAIBuildURL(t *testing.T) {
	p := &openAIProvider{}
	tests := []struct {
		base string
		want string
	}{
		{"", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://proxy.example/v1/", "https://proxy.example/v1/chat/completions"},
		{"https://proxy.example/v1/chat/completions", "https://proxy.example/v1/chat/completions"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.BuildURL(tt.base, "gpt-4o-mini"), "base %q", tt.base)
	}
}

func TestOllamaBuildURL(t *testing.T) {
	p := &ollamaProvider{}
	tests := []struct {
		base string
		want string
	}{
		{"", "http://localhost:11434/v1/chat/completions"},
		{"http://localhost:11434", "http://localhost:11434/v1/chat/completions"},
		{"http://gpu-box:8000/v1", "http://gpu-box:8000/v1/chat/completions"},
		{"http://gpu-box:8000/v1/chat/completions", "http://gpu-box:8000/v1/chat/completions"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.BuildURL(tt.base, "llama3"), "base %q", tt.base)
	}
}

func TestSetHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
	require.NoError(t, err)

	(&openAIProvider{}).SetHeaders(req, "sk-test")
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))

	bare, err := http.NewRequest(http.MethodPost, "http://localhost:11434/v1/chat/completions", nil)
	require.NoError(t, err)
	(&ollamaProvider{}).SetHeaders(bare, "")
	assert.Empty(t, bare.Header.Get("Authorization"))
}

func TestBuildRequestBody(t *testing.T) {
	p := &openAIProvider{}
	temp := 0.4

	body, err := p.BuildRequestBody("gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, Options{Temperature: &temp, MaxTokens: 128})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "gpt-4o-mini", decoded["model"])
	assert.Equal(t, 0.4, decoded["temperature"])
	assert.Equal(t, float64(128), decoded["max_tokens"])

	// Defaults stay with the endpoint when unset.
	body, err = p.BuildRequestBody("gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, Options{})
	require.NoError(t, err)
	decoded = map[string]any{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.NotContains(t, decoded, "temperature")
	assert.NotContains(t, decoded, "max_tokens")
}

func TestParseResponse(t *testing.T) {
	p := &openAIProvider{}

	resp, err := p.ParseResponse([]byte(`{
		"model": "gpt-4o-mini",
		"choices": [{"message": {"role": "assistant", "content": "42"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "42", resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
	assert.Equal(t, "stop", resp.FinishReason)

	_, err = p.ParseResponse([]byte(`{"choices": []}`))
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	_, err = p.ParseResponse([]byte(`not json`))
	require.Error(t, err)
	assert.True(t, IsFatal(err))
}
