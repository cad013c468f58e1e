// SPDX-License-Identifier: MIT

// Package config loads, validates, and hot-reloads the daemon configuration.
// Precedence: ENV > file > defaults. YAML parsing is strict.
package config

import (
	"sort"
	"time"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Version string

	// Data layout
	DataDir    string // holds config.yaml, secrets.yaml, plain_text_resume.yaml
	OutputDir  string // application record exports
	ResumePath string // resume document uploaded with applications

	// Servers
	Listen        string
	MetricsListen string

	// API auth
	APIToken       string
	AuthAnonymous  bool
	TrustedProxies []string
	AllowedOrigins []string

	// Logging
	LogLevel string

	// Run engine
	RunOnStart               bool
	RunInterval              time.Duration // 0 disables the scheduler
	Parallelism              int
	SkipApply                bool
	DisableDescriptionFilter bool
	FastWaits                bool

	Cache     CacheConfig
	Telemetry TelemetryConfig
	Outbound  OutboundConfig

	Settings Settings
	Secrets  Secrets
}

// CacheConfig selects and tunes the response cache backend.
type CacheConfig struct {
	Backend   string // "memory", "redis", or "noop"
	RedisAddr string
	TTL       time.Duration
}

// TelemetryConfig configures the OpenTelemetry trace exporter.
type TelemetryConfig struct {
	Enabled      bool
	Endpoint     string
	Exporter     string // "grpc" or "http"
	Environment  string
	SamplingRate float64
}

// OutboundConfig extends the outbound URL policy beyond the hosts derived
// from configured portal and LLM URLs.
type OutboundConfig struct {
	AllowHosts []string
	AllowCIDRs []string
	AllowPorts []int
}

// Settings mirrors config.yaml.
type Settings struct {
	Remote             bool                `yaml:"remote"`
	ExperienceLevel    ExperienceLevel     `yaml:"experienceLevel"`
	JobTypes           JobTypes            `yaml:"jobTypes"`
	Date               DateFilter          `yaml:"date"`
	Positions          []string            `yaml:"positions"`
	Locations          []string            `yaml:"locations"`
	Distance           int                 `yaml:"distance"`
	ApplyOnceAtCompany bool                `yaml:"apply_once_at_company"`
	CompanyBlacklist   []string            `yaml:"company_blacklist"`
	TitleBlacklist     []string            `yaml:"title_blacklist"`
	Applicants         ApplicantsThreshold `yaml:"job_applicants_threshold"`
	Matching           Matching            `yaml:"job_matching_algorithm"`
	LLMModelType       string              `yaml:"llm_model_type"`
	LLMModel           string              `yaml:"llm_model"`
	LLMAPIURL          string              `yaml:"llm_api_url"`
	JobPortals         []PortalSettings    `yaml:"job_portals"`
}

// ExperienceLevel selects which seniority bands to search.
type ExperienceLevel struct {
	Internship     bool `yaml:"internship"`
	Entry          bool `yaml:"entry"`
	Associate      bool `yaml:"associate"`
	MidSeniorLevel bool `yaml:"mid_senior_level"`
	Director       bool `yaml:"director"`
	Executive      bool `yaml:"executive"`
}

// Any reports whether at least one level is selected.
func (e ExperienceLevel) Any() bool {
	return e.Internship || e.Entry || e.Associate || e.MidSeniorLevel || e.Director || e.Executive
}

// Codes returns the selected levels as LinkedIn f_E codes (1..6).
func (e ExperienceLevel) Codes() []int {
	var codes []int
	for code, set := range map[int]bool{
		1: e.Internship,
		2: e.Entry,
		3: e.Associate,
		4: e.MidSeniorLevel,
		5: e.Director,
		6: e.Executive,
	} {
		if set {
			codes = append(codes, code)
		}
	}
	sort.Ints(codes)
	return codes
}

// JobTypes selects which employment forms to search.
type JobTypes struct {
	FullTime   bool `yaml:"full_time"`
	Contract   bool `yaml:"contract"`
	PartTime   bool `yaml:"part_time"`
	Temporary  bool `yaml:"temporary"`
	Internship bool `yaml:"internship"`
	Other      bool `yaml:"other"`
}

// Any reports whether at least one type is selected.
func (j JobTypes) Any() bool {
	return j.FullTime || j.Contract || j.PartTime || j.Temporary || j.Internship || j.Other
}

// Letters returns the selected types as LinkedIn f_JT letters.
func (j JobTypes) Letters() []string {
	var letters []string
	for _, t := range []struct {
		letter string
		set    bool
	}{
		{"F", j.FullTime},
		{"C", j.Contract},
		{"P", j.PartTime},
		{"T", j.Temporary},
		{"I", j.Internship},
		{"O", j.Other},
	} {
		if t.set {
			letters = append(letters, t.letter)
		}
	}
	return letters
}

// DateFilter narrows results by posting age. Exactly one field must be true.
type DateFilter struct {
	AllTime bool `yaml:"all_time"`
	Month   bool `yaml:"month"`
	Week    bool `yaml:"week"`
	Day     bool `yaml:"24_hours"`
}

// Count returns how many windows are selected.
func (d DateFilter) Count() int {
	n := 0
	for _, v := range []bool{d.AllTime, d.Month, d.Week, d.Day} {
		if v {
			n++
		}
	}
	return n
}

// Window returns the LinkedIn f_TPR value for the selected window. All
// time selects no window and returns the empty string.
func (d DateFilter) Window() string {
	switch {
	case d.Day:
		return "r86400"
	case d.Week:
		return "r604800"
	case d.Month:
		return "r2592000"
	default:
		return ""
	}
}

// ApplicantsThreshold skips listings whose applicant count falls outside the window.
type ApplicantsThreshold struct {
	MinApplicants int `yaml:"min_applicants"`
	MaxApplicants int `yaml:"max_applicants"`
}

// Matching configures the keyword suitability score.
type Matching struct {
	MatchThreshold float64  `yaml:"match_threshold"`
	Keywords       []string `yaml:"keywords"`
}

// PortalSettings describes one job portal endpoint set.
type PortalSettings struct {
	Name              string `yaml:"name"`
	BaseURL           string `yaml:"base_url"`
	LoginPath         string `yaml:"login_path"`
	FeedPath          string `yaml:"feed_path"`
	SearchPath        string `yaml:"search_path"`
	ProfilePath       string `yaml:"profile_path"`
	SecurityCheckPath string `yaml:"security_check_path"`
}

// Secrets mirrors secrets.yaml.
type Secrets struct {
	LLMAPIKey string                       `yaml:"llm_api_key"`
	Portals   map[string]PortalCredentials `yaml:"portals"`
}

// PortalCredentials holds the login for one portal.
type PortalCredentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}
