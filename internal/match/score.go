// SPDX-License-Identifier: MIT

package match

import (
	"strings"
	"unicode"

	"github.com/dreambooster/dreambooster/internal/listing"
	"github.com/dreambooster/dreambooster/internal/normalize"
)

// score returns the fraction of configured keywords found whole-word in the
// listing text. No keywords means the rule cannot fail.
func (e *Evaluator) score(l listing.Listing) float64 {
	if len(e.cfg.Keywords) == 0 {
		return 1
	}

	text := l.Title
	if !e.cfg.TitleOnly && l.Description != "" {
		text += "\n" + l.Description
	}
	hay := wordBoundaryForm(text)

	matched := 0
	for _, kw := range e.cfg.Keywords {
		needle := strings.TrimSpace(wordBoundaryForm(kw))
		if needle == "" {
			continue
		}
		if strings.Contains(hay, " "+needle+" ") {
			matched++
		}
	}
	return float64(matched) / float64(len(e.cfg.Keywords))
}

// containsWholeWord reports whether phrase occurs in text on word
// boundaries after Unicode case folding. Multi-word phrases match as a
// contiguous sequence.
func containsWholeWord(text, phrase string) bool {
	needle := strings.TrimSpace(wordBoundaryForm(phrase))
	if needle == "" {
		return false
	}
	return strings.Contains(wordBoundaryForm(text), " "+needle+" ")
}

// wordBoundaryForm folds the input and rewrites it as space-padded words so
// substring search cannot match inside a word ("go" must not hit "golang"
// unless listed as such).
func wordBoundaryForm(s string) string {
	folded := normalize.Fold(s)
	var b strings.Builder
	b.Grow(len(folded) + 2)
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return " " + strings.Join(strings.Fields(b.String()), " ") + " "
}
