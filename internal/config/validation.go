// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"strings"
	"time"

	netpolicy "github.com/dreambooster/dreambooster/internal/platform/net"
)

// Scheduled runs below this interval would hammer the portals.
const minRunInterval = time.Minute

var validDistances = map[int]bool{0: true, 5: true, 10: true, 25: true, 50: true, 100: true}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Placeholder keys shipped in documentation examples. Treated as unset.
var placeholderAPIKeys = map[string]bool{
	"sk-11KRr4uuTwpRGfeRTfj1T9WTshgsdjhgfjgfdjgf": true,
	"your-api-key-here": true,
	"changeme":          true,
}

// Validate checks the fully merged configuration. It returns the first
// violation found so the operator sees one actionable error at a time.
func Validate(cfg Config) error {
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level %q invalid (trace|debug|info|warn|error)", cfg.LogLevel)
	}
	if cfg.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if cfg.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", cfg.Parallelism)
	}
	if cfg.RunInterval != 0 && cfg.RunInterval < minRunInterval {
		return fmt.Errorf("run_interval %s below minimum %s", cfg.RunInterval, minRunInterval)
	}
	if !cfg.AuthAnonymous && cfg.APIToken == "" {
		return fmt.Errorf("no API token configured: set DREAM_API_TOKEN or explicitly allow anonymous access with DREAM_AUTH_ANONYMOUS=true")
	}

	if err := validateCache(cfg.Cache); err != nil {
		return err
	}
	if err := validateTelemetry(cfg.Telemetry); err != nil {
		return err
	}
	if err := validateSettings(cfg.Settings); err != nil {
		return err
	}
	if err := validateSecrets(cfg.Secrets, cfg.Settings); err != nil {
		return err
	}
	return nil
}

func validateCache(c CacheConfig) error {
	switch c.Backend {
	case "memory", "noop":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("cache backend redis requires DREAM_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("cache backend %q invalid (memory|redis|noop)", c.Backend)
	}
	if c.TTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	return nil
}

func validateTelemetry(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if t.Exporter != "grpc" && t.Exporter != "http" {
		return fmt.Errorf("telemetry exporter %q invalid (grpc|http)", t.Exporter)
	}
	if t.Endpoint == "" {
		return fmt.Errorf("telemetry enabled but endpoint is empty")
	}
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		return fmt.Errorf("telemetry sampling rate %v outside [0,1]", t.SamplingRate)
	}
	return nil
}

func validateSettings(s Settings) error {
	if len(s.Positions) == 0 {
		return fmt.Errorf("%s: positions must list at least one role", SettingsFile)
	}
	for i, p := range s.Positions {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%s: positions[%d] is blank", SettingsFile, i)
		}
	}
	if len(s.Locations) == 0 {
		return fmt.Errorf("%s: locations must list at least one location", SettingsFile)
	}
	for i, loc := range s.Locations {
		if strings.TrimSpace(loc) == "" {
			return fmt.Errorf("%s: locations[%d] is blank", SettingsFile, i)
		}
	}
	if !s.ExperienceLevel.Any() {
		return fmt.Errorf("%s: at least one experienceLevel must be true", SettingsFile)
	}
	if !s.JobTypes.Any() {
		return fmt.Errorf("%s: at least one jobTypes entry must be true", SettingsFile)
	}
	if n := s.Date.Count(); n != 1 {
		return fmt.Errorf("%s: exactly one date filter must be true, got %d", SettingsFile, n)
	}
	if !validDistances[s.Distance] {
		return fmt.Errorf("%s: distance %d invalid (0|5|10|25|50|100)", SettingsFile, s.Distance)
	}
	if s.Applicants.MinApplicants < 0 {
		return fmt.Errorf("%s: job_applicants_threshold.min_applicants must not be negative", SettingsFile)
	}
	if s.Applicants.MaxApplicants < s.Applicants.MinApplicants {
		return fmt.Errorf("%s: job_applicants_threshold.max_applicants %d below min_applicants %d",
			SettingsFile, s.Applicants.MaxApplicants, s.Applicants.MinApplicants)
	}
	if t := s.Matching.MatchThreshold; t < 0 || t > 1 {
		return fmt.Errorf("%s: job_matching_algorithm.match_threshold %v outside [0,1]", SettingsFile, t)
	}

	if s.LLMModelType != "openai" && s.LLMModelType != "ollama" {
		return fmt.Errorf("%s: llm_model_type %q invalid (openai|ollama)", SettingsFile, s.LLMModelType)
	}
	if strings.TrimSpace(s.LLMModel) == "" {
		return fmt.Errorf("%s: llm_model must not be empty", SettingsFile)
	}
	if s.LLMAPIURL != "" {
		if _, ok := netpolicy.ParseDirectHTTPURL(s.LLMAPIURL); !ok {
			return fmt.Errorf("%s: llm_api_url %q is not a direct http(s) URL", SettingsFile, s.LLMAPIURL)
		}
	}

	return validatePortals(s.JobPortals)
}

func validatePortals(portals []PortalSettings) error {
	if len(portals) == 0 {
		return fmt.Errorf("%s: at least one job portal must be configured", SettingsFile)
	}
	seen := make(map[string]bool, len(portals))
	for i, p := range portals {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("%s: job_portals[%d].name is blank", SettingsFile, i)
		}
		if seen[name] {
			return fmt.Errorf("%s: duplicate portal name %q", SettingsFile, name)
		}
		seen[name] = true

		if _, ok := netpolicy.ParseDirectHTTPURL(p.BaseURL); !ok {
			return fmt.Errorf("%s: portal %q base_url %q is not a direct http(s) URL", SettingsFile, name, p.BaseURL)
		}
		for _, pp := range []struct{ field, val string }{
			{"login_path", p.LoginPath},
			{"feed_path", p.FeedPath},
			{"search_path", p.SearchPath},
			{"profile_path", p.ProfilePath},
			{"security_check_path", p.SecurityCheckPath},
		} {
			if pp.val == "" {
				continue
			}
			if !strings.HasPrefix(pp.val, "/") {
				return fmt.Errorf("%s: portal %q %s must start with /", SettingsFile, name, pp.field)
			}
		}
	}
	return nil
}

func validateSecrets(sec Secrets, s Settings) error {
	key := strings.TrimSpace(sec.LLMAPIKey)
	if key == "" || placeholderAPIKeys[key] {
		// Local ollama endpoints authenticate with anything, an explicit
		// key is still required so a missing secrets file surfaces early.
		return fmt.Errorf("%s: llm_api_key is missing or a placeholder", SecretsFile)
	}
	for _, p := range s.JobPortals {
		creds, ok := sec.Portals[p.Name]
		if !ok {
			return fmt.Errorf("%s: no credentials for portal %q", SecretsFile, p.Name)
		}
		if strings.TrimSpace(creds.Username) == "" {
			return fmt.Errorf("%s: portal %q username is empty", SecretsFile, p.Name)
		}
		if creds.Password == "" {
			return fmt.Errorf("%s: portal %q password is empty", SecretsFile, p.Name)
		}
	}
	return nil
}
