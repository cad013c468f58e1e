// SPDX-License-Identifier: MIT

package normalize

import "testing"

func TestToken(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Engineer", "engineer"},
		{"surrounding space", "  Backend  ", "backend"},
		{"zero width space", "\u200BGo\u200B", "go"},
		{"bom", "\uFEFFDev", "dev"},
		{"inner space kept", "Site Reliability", "site reliability"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Token(tt.in); got != tt.want {
				t.Errorf("Token(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFold(t *testing.T) {
	if Fold("Straße") != Fold("STRASSE") {
		t.Error("sharp s should fold equal to ss")
	}
	// Composed vs decomposed accent
	if Fold("café") != Fold("café") {
		t.Error("composed and decomposed accents should fold equal")
	}
	if Fold("GoLang") != Fold("golang") {
		t.Error("case folding failed")
	}
}

func TestCompany(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"Acme  Corp", "acme corp"},
		{" Initech ", "INITECH"},
		{"Eviℓ Co", "eviℓ co"},
	}
	for _, tt := range tests {
		if Company(tt.a) != Company(tt.b) {
			t.Errorf("Company(%q) != Company(%q)", tt.a, tt.b)
		}
	}
}

func TestQuestion(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"punctuation", "Years of experience?", "years of experience"},
		{"extra spaces", "Notice   period (weeks):", "notice period weeks"},
		{"case", "Are you AUTHORIZED to work?", "are you authorized to work"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Question(tt.a) != Question(tt.b) {
				t.Errorf("Question(%q)=%q, Question(%q)=%q", tt.a, Question(tt.a), tt.b, Question(tt.b))
			}
		})
	}
}

func TestMapHash(t *testing.T) {
	h1, err := MapHash(map[string]interface{}{"position": "engineer", "page": 2})
	if err != nil {
		t.Fatalf("MapHash: %v", err)
	}
	h2, err := MapHash(map[string]interface{}{"page": 2, "position": "engineer"})
	if err != nil {
		t.Fatalf("MapHash: %v", err)
	}
	if h1 != h2 {
		t.Error("hash must be independent of key insertion order")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}

	empty, err := MapHash(nil)
	if err != nil || empty != "" {
		t.Errorf("empty map: got (%q, %v), want (\"\", nil)", empty, err)
	}
}
