// SPDX-License-Identifier: MIT

// Package llm generates application answers through OpenAI-compatible chat
// completion endpoints. Providers are registered by name and selected via
// the llm_model_type setting; the client adds bounded retries, outbound URL
// policy checks and per-request metrics on top.
package llm

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries per-request generation knobs. Temperature nil keeps the
// endpoint default, zero forces determinism.
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// TokenUsage is the token accounting a provider reports, when it does.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a parsed completion.
type Response struct {
	Content      string
	Model        string
	Usage        TokenUsage
	FinishReason string
}

// Provider adapts one API dialect to the client.
type Provider interface {
	// Name returns the registry key, the value of llm_model_type.
	Name() string

	// BuildURL constructs the completion endpoint from the configured base
	// URL. An empty base selects the provider default.
	BuildURL(baseURL, model string) string

	// SetHeaders adds auth and dialect headers to the request.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody renders the JSON request payload.
	BuildRequestBody(model string, messages []Message, opts Options) ([]byte, error)

	// ParseResponse extracts the completion from the raw response body.
	ParseResponse(body []byte) (*Response, error)
}

var (
	providerMu sync.RWMutex
	providers  = make(map[string]Provider)
)

// RegisterProvider adds a provider under its name. Registering the same
// name twice is an error.
func RegisterProvider(p Provider) error {
	providerMu.Lock()
	defer providerMu.Unlock()
	name := p.Name()
	if _, exists := providers[name]; exists {
		return fmt.Errorf("llm provider %q already registered", name)
	}
	providers[name] = p
	return nil
}

func mustRegister(p Provider) {
	if err := RegisterProvider(p); err != nil {
		panic(err)
	}
}

// GetProvider returns the provider registered under name.
func GetProvider(name string) (Provider, bool) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	p, ok := providers[name]
	return p, ok
}

// ProviderNames lists registered providers, sorted.
func ProviderNames() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
