// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dreambooster/dreambooster/internal/log"
	"gopkg.in/yaml.v3"
)

// Well-known file names inside the data directory.
const (
	SettingsFile = "config.yaml"
	SecretsFile  = "secrets.yaml"
	ProfileFile  = "plain_text_resume.yaml"
)

// Loader handles configuration loading with precedence
type Loader struct {
	dataDir         string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader rooted at the data directory.
func NewLoader(dataDir, version string) *Loader {
	return &Loader{
		dataDir:         dataDir,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envSlice(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseStringSlice(key, defaultVal)
}

// Load resolves configuration with precedence: ENV > File > Defaults.
// Order: resolve data dir -> parse files (strict) -> apply env -> validate.
func (l *Loader) Load() (Config, error) {
	cfg := Config{Version: l.version}

	dataDir := l.envString("DREAM_DATA_DIR", l.dataDir)
	if dataDir == "" {
		dataDir = "./data"
	}
	// DataDir must be absolute to keep path confinement checks meaningful.
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return cfg, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = abs

	if err := l.loadSettings(&cfg); err != nil {
		return cfg, err
	}
	if err := l.loadSecrets(&cfg); err != nil {
		return cfg, err
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadSettings(cfg *Config) error {
	path := filepath.Join(cfg.DataDir, SettingsFile)
	data, err := readConfigFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", SettingsFile, err)
	}
	if err := decodeStrict(data, &cfg.Settings); err != nil {
		return fmt.Errorf("parse %s: %w", SettingsFile, err)
	}
	return nil
}

func (l *Loader) loadSecrets(cfg *Config) error {
	path := filepath.Join(cfg.DataDir, SecretsFile)
	data, err := readConfigFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", SecretsFile, err)
	}
	if err := decodeStrict(data, &cfg.Secrets); err != nil {
		return fmt.Errorf("parse %s: %w", SecretsFile, err)
	}
	return nil
}

func readConfigFile(path string) ([]byte, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are derived from the operator-provided data dir
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// decodeStrict parses YAML with strict mode. Unknown fields cause a fatal
// error to prevent misconfiguration, and trailing documents are rejected.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return fmt.Errorf("file is empty")
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict parse error (unknown key): %w", err)
		}
		return fmt.Errorf("strict parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.OutputDir = l.envString("DREAM_OUTPUT_DIR", filepath.Join(cfg.DataDir, "output"))
	cfg.ResumePath = l.envString("DREAM_RESUME_PATH", filepath.Join(cfg.DataDir, "resume.pdf"))

	cfg.Listen = l.envString("DREAM_LISTEN", ":8080")
	cfg.MetricsListen = l.envString("DREAM_METRICS_LISTEN", ":9090")

	cfg.APIToken = l.envString("DREAM_API_TOKEN", "")
	cfg.AuthAnonymous = l.envBool("DREAM_AUTH_ANONYMOUS", false)
	cfg.TrustedProxies = l.envSlice("DREAM_TRUSTED_PROXIES", nil)
	cfg.AllowedOrigins = l.envSlice("DREAM_ALLOWED_ORIGINS", nil)

	cfg.LogLevel = l.envString("DREAM_LOG_LEVEL", "info")

	cfg.RunOnStart = l.envBool("DREAM_RUN_ON_START", false)
	cfg.RunInterval = l.envDuration("DREAM_RUN_INTERVAL", 0)
	cfg.Parallelism = l.envInt("DREAM_PARALLELISM", 2)
	cfg.SkipApply = l.envBool("DREAM_SKIP_APPLY", false)
	cfg.DisableDescriptionFilter = l.envBool("DREAM_DISABLE_DESCRIPTION_FILTER", false)
	cfg.FastWaits = l.envBool("DREAM_FAST_WAITS", false)

	cfg.Cache.Backend = l.envString("DREAM_CACHE_BACKEND", "memory")
	cfg.Cache.RedisAddr = l.envString("DREAM_REDIS_ADDR", "localhost:6379")
	cfg.Cache.TTL = l.envDuration("DREAM_CACHE_TTL", 15*time.Minute)

	cfg.Telemetry.Enabled = l.envBool("DREAM_OTEL_ENABLED", false)
	cfg.Telemetry.Endpoint = l.envString("DREAM_OTEL_ENDPOINT", "localhost:4317")
	cfg.Telemetry.Exporter = l.envString("DREAM_OTEL_EXPORTER", "grpc")
	cfg.Telemetry.Environment = l.envString("DREAM_OTEL_ENVIRONMENT", "production")
	cfg.Telemetry.SamplingRate = l.envFloat("DREAM_OTEL_SAMPLING_RATE", 1.0)

	cfg.Outbound.AllowHosts = l.envSlice("DREAM_OUTBOUND_ALLOW_HOSTS", nil)
	cfg.Outbound.AllowCIDRs = l.envSlice("DREAM_OUTBOUND_ALLOW_CIDRS", nil)
	for _, p := range l.envSlice("DREAM_OUTBOUND_ALLOW_PORTS", nil) {
		if port := atoiOrZero(p); port > 0 {
			cfg.Outbound.AllowPorts = append(cfg.Outbound.AllowPorts, port)
		}
	}

	// Secrets and LLM selection may be overridden without touching the files.
	if key := l.envString("DREAM_LLM_API_KEY", ""); key != "" {
		cfg.Secrets.LLMAPIKey = key
	}
	if model := l.envString("DREAM_LLM_MODEL", ""); model != "" {
		cfg.Settings.LLMModel = model
	}
	if typ := l.envString("DREAM_LLM_MODEL_TYPE", ""); typ != "" {
		cfg.Settings.LLMModelType = typ
	}
	if u := l.envString("DREAM_LLM_API_URL", ""); u != "" {
		cfg.Settings.LLMAPIURL = u
	}
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// WarnUnknownEnv reports DREAM_-prefixed environment keys the loader never
// consumed. Typos in env configuration fail silently otherwise.
func (l *Loader) WarnUnknownEnv() {
	logger := log.WithComponent("config")
	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "DREAM_") {
			continue
		}
		if _, consumed := l.ConsumedEnvKeys[key]; !consumed {
			logger.Warn().
				Str("key", key).
				Msg("unknown DREAM_ environment variable (typo?)")
		}
	}
}
