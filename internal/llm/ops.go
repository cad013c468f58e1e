// SPDX-License-Identifier: MIT
package llm

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/dreambooster/dreambooster/internal/normalize"
)

// Form field kinds the answer generator distinguishes.
const (
	KindText     = "text"
	KindTextarea = "textarea"
	KindNumeric  = "numeric"
	KindDropdown = "dropdown"
	KindRadio    = "radio"
	KindCheckbox = "checkbox"
)

const (
	answerTemperature  = 0.4
	fitTemperature     = 0.2
	summaryTemperature = 0.3

	answerMaxTokens  = 256
	summaryMaxTokens = 512
	fitMaxTokens     = 512
)

// Question describes one form field that needs a generated answer.
type Question struct {
	Text    string
	Kind    string
	Options []string
}

// Answerer generates form answers, description summaries and fit
// assessments for one candidate profile.
type Answerer struct {
	client  *Client
	profile string
}

// NewAnswerer wraps client with the candidate's rendered profile text.
func NewAnswerer(client *Client, profileText string) *Answerer {
	return &Answerer{client: client, profile: profileText}
}

// GenerateAnswer produces the value for one form field. Numeric answers
// are clamped to their digits; dropdown and radio answers always come
// back as one of the offered options, by nearest match if the model
// strays. job is the rendered listing context and may be empty.
func (a *Answerer) GenerateAnswer(ctx context.Context, q Question, job string) (string, error) {
	if strings.TrimSpace(q.Text) == "" {
		return "", fmt.Errorf("question text is empty")
	}

	wantsOption := optionKind(q.Kind) && len(q.Options) > 0
	tmpl := answerTextTemplate
	switch {
	case q.Kind == KindNumeric:
		tmpl = answerNumericTemplate
	case wantsOption:
		tmpl = answerOptionsTemplate
	}

	prompt, err := renderPrompt(tmpl, answerPromptData{
		Profile:  a.profile,
		Job:      job,
		Question: q.Text,
		Options:  q.Options,
	})
	if err != nil {
		return "", err
	}

	resp, err := a.complete(ctx, prompt, answerTemperature, answerMaxTokens)
	if err != nil {
		return "", err
	}

	answer := cleanAnswer(resp.Content, q.Kind)
	if answer == "" {
		return "", fmt.Errorf("model returned an empty answer for %q", q.Text)
	}

	switch {
	case q.Kind == KindNumeric:
		return extractInteger(answer)
	case wantsOption:
		return nearestOption(answer, q.Options), nil
	default:
		return answer, nil
	}
}

// SummarizeDescription condenses a sanitized job description. An empty
// description summarizes to an empty string without a model call.
func (a *Answerer) SummarizeDescription(ctx context.Context, description string) (string, error) {
	if strings.TrimSpace(description) == "" {
		return "", nil
	}
	prompt, err := renderPrompt(summarizeTemplate, summarizePromptData{Description: description})
	if err != nil {
		return "", err
	}
	resp, err := a.complete(ctx, prompt, summaryTemperature, summaryMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// EvaluateFit scores the candidate against a job on [0,1] and returns
// the model's analysis text.
func (a *Answerer) EvaluateFit(ctx context.Context, job string) (float64, string, error) {
	if strings.TrimSpace(job) == "" {
		return 0, "", fmt.Errorf("job text is empty")
	}
	prompt, err := renderPrompt(evaluateFitTemplate, fitPromptData{Profile: a.profile, Job: job})
	if err != nil {
		return 0, "", err
	}
	resp, err := a.complete(ctx, prompt, fitTemperature, fitMaxTokens)
	if err != nil {
		return 0, "", err
	}

	analysis := strings.TrimSpace(resp.Content)
	score, err := parseFitScore(analysis)
	if err != nil {
		return 0, analysis, err
	}
	return score, analysis, nil
}

func (a *Answerer) complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (*Response, error) {
	return a.client.Complete(ctx, Request{
		Messages: []Message{{Role: "user", Content: prompt}},
		Options:  Options{Temperature: &temperature, MaxTokens: maxTokens},
	})
}

func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func optionKind(kind string) bool {
	switch kind {
	case KindDropdown, KindRadio, KindCheckbox:
		return true
	}
	return false
}

// cleanAnswer strips model framing. Single-line kinds keep only the
// first non-empty line, textarea keeps its newlines.
func cleanAnswer(raw, kind string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "`\"'")
	s = strings.TrimSpace(s)
	if kind == KindTextarea {
		return s
	}
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// extractInteger clamps an answer to its first run of digits. Thousands
// separators inside the run are dropped.
func extractInteger(s string) (string, error) {
	s = strings.ReplaceAll(s, ",", "")
	start := -1
	for i, r := range s {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return s[start:i], nil
		}
	}
	if start >= 0 {
		return s[start:], nil
	}
	return "", fmt.Errorf("no number in answer %q", s)
}

// nearestOption maps a model answer onto one of the offered options:
// exact fold match, then containment, then smallest edit distance.
func nearestOption(answer string, options []string) string {
	folded := normalize.Fold(strings.TrimSpace(answer))

	for _, opt := range options {
		if normalize.Fold(strings.TrimSpace(opt)) == folded {
			return opt
		}
	}

	best, bestLen := -1, -1
	for i, opt := range options {
		fo := normalize.Fold(strings.TrimSpace(opt))
		if fo == "" {
			continue
		}
		if strings.Contains(folded, fo) || strings.Contains(fo, folded) {
			if len(fo) > bestLen {
				best, bestLen = i, len(fo)
			}
		}
	}
	if best >= 0 {
		return options[best]
	}

	best, bestDist := 0, -1
	for i, opt := range options {
		d := editDistance(folded, normalize.Fold(strings.TrimSpace(opt)))
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return options[best]
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// parseFitScore reads the leading `Score: N` line. N above 1 is treated
// as the 0..10 scale and normalized.
func parseFitScore(content string) (float64, error) {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, "score") {
			continue
		}
		rest := strings.TrimLeft(trimmed[len("score"):], " :=")
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		raw := strings.TrimSuffix(fields[0], "/10")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if v > 10 {
			v = 10
		}
		if v > 1 {
			v /= 10
		}
		if v < 0 {
			v = 0
		}
		return v, nil
	}
	return 0, fmt.Errorf("no score line in fit response")
}
