// SPDX-License-Identifier: MIT
package llm

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/answer_text.md
var answerTextRaw string

//go:embed prompts/answer_numeric.md
var answerNumericRaw string

//go:embed prompts/answer_options.md
var answerOptionsRaw string

//go:embed prompts/summarize.md
var summarizeRaw string

//go:embed prompts/evaluate_fit.md
var evaluateFitRaw string

// Prompt templates are parsed once at package init and reused on every call.
var (
	answerTextTemplate    = template.Must(template.New("answer_text").Parse(answerTextRaw))
	answerNumericTemplate = template.Must(template.New("answer_numeric").Parse(answerNumericRaw))
	answerOptionsTemplate = template.Must(template.New("answer_options").Parse(answerOptionsRaw))
	summarizeTemplate     = template.Must(template.New("summarize").Parse(summarizeRaw))
	evaluateFitTemplate   = template.Must(template.New("evaluate_fit").Parse(evaluateFitRaw))
)

type answerPromptData struct {
	Profile  string
	Job      string
	Question string
	Options  []string
}

type summarizePromptData struct {
	Description string
}

type fitPromptData struct {
	Profile string
	Job     string
}
