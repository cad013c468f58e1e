// SPDX-License-Identifier: MIT

// Command boosterd runs the job application daemon: portal search,
// suitability matching, LLM-assisted form filling, the application
// ledger, and the HTTP control plane.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreambooster/dreambooster/internal/answers"
	"github.com/dreambooster/dreambooster/internal/api"
	"github.com/dreambooster/dreambooster/internal/apply"
	"github.com/dreambooster/dreambooster/internal/cache"
	"github.com/dreambooster/dreambooster/internal/config"
	"github.com/dreambooster/dreambooster/internal/daemon"
	"github.com/dreambooster/dreambooster/internal/health"
	"github.com/dreambooster/dreambooster/internal/llm"
	boosterlog "github.com/dreambooster/dreambooster/internal/log"
	"github.com/dreambooster/dreambooster/internal/match"
	netpolicy "github.com/dreambooster/dreambooster/internal/platform/net"
	"github.com/dreambooster/dreambooster/internal/portal"
	"github.com/dreambooster/dreambooster/internal/profile"
	"github.com/dreambooster/dreambooster/internal/resilience"
	"github.com/dreambooster/dreambooster/internal/runs"
	"github.com/dreambooster/dreambooster/internal/state"
	"github.com/dreambooster/dreambooster/internal/telemetry"
	"github.com/dreambooster/dreambooster/internal/track"
	"github.com/dreambooster/dreambooster/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	dataDir := flag.String("data", "", "data directory (overrides DREAM_DATA_DIR)")
	healthcheck := flag.Bool("healthcheck", false, "probe the running daemon and exit (for Docker HEALTHCHECK)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	boosterlog.Configure(boosterlog.Config{
		Level:   "info",
		Service: "dreambooster",
	})
	logger := boosterlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*dataDir, version.String())
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Msg("failed to load configuration")
	}

	boosterlog.Configure(boosterlog.Config{
		Level:   cfg.LogLevel,
		Service: "dreambooster",
	})
	loader.WarnUnknownEnv()

	if *healthcheck {
		os.Exit(runHealthcheck(cfg.Listen))
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.String()).
		Str("addr", cfg.Listen).
		Str("data_dir", cfg.DataDir).
		Msg("starting boosterd")
	if cfg.APIToken == "" && !cfg.AuthAnonymous {
		logger.Warn().
			Str("security", "fail_closed").
			Msg("DREAM_API_TOKEN not set, control API will deny all requests")
	}

	// Tracing
	tracerProvider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dreambooster",
		ServiceVersion: version.String(),
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "telemetry.init_failed").Msg("failed to initialize tracing")
	}

	// Stores
	st, err := state.Open(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Fatal().Err(err).Str("event", "state.open_failed").Msg("failed to open state store")
	}
	st.StartGC(ctx, time.Hour)
	ledger, err := track.Open(filepath.Join(cfg.DataDir, "applications.db"), cfg.OutputDir)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "ledger.open_failed").Msg("failed to open application ledger")
	}

	seen := track.NewSeenStore(st)
	companies := track.NewCompanyStore(st)
	answerStore := answers.New(st)

	respCache, err := cache.New(cfg.Cache.Backend, cache.RedisConfig{Addr: cfg.Cache.RedisAddr}, boosterlog.WithComponent("cache"))
	if err != nil {
		logger.Fatal().Err(err).Str("event", "cache.init_failed").Msg("failed to initialize response cache")
	}

	// Outbound URL policy derived from the configured endpoints.
	policy := buildOutboundPolicy(cfg)

	// Candidate profile feeds the LLM prompts.
	prof, err := profile.Load(filepath.Join(cfg.DataDir, config.ProfileFile))
	if err != nil {
		logger.Fatal().Err(err).Str("event", "profile.load_failed").Msg("failed to load candidate profile")
	}

	llmClient, err := llm.NewWithOptions(llm.Config{
		Provider: cfg.Settings.LLMModelType,
		Model:    cfg.Settings.LLMModel,
		APIKey:   cfg.Secrets.LLMAPIKey,
		BaseURL:  cfg.Settings.LLMAPIURL,
	}, llm.ClientOptions{Policy: &policy})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "llm.init_failed").Msg("failed to initialize LLM client")
	}
	answerer := llm.NewAnswerer(llmClient, prof.PromptText())

	evaluator := match.NewEvaluator(match.Config{
		TitleBlacklist:     cfg.Settings.TitleBlacklist,
		CompanyBlacklist:   cfg.Settings.CompanyBlacklist,
		ApplyOnceAtCompany: cfg.Settings.ApplyOnceAtCompany,
		MinApplicants:      cfg.Settings.Applicants.MinApplicants,
		MaxApplicants:      cfg.Settings.Applicants.MaxApplicants,
		MatchThreshold:     cfg.Settings.Matching.MatchThreshold,
		Keywords:           cfg.Settings.Matching.Keywords,
		TitleOnly:          cfg.DisableDescriptionFilter,
	}, seen, companies)

	engine, err := apply.New(apply.Deps{
		Answers:   answerStore,
		Generator: answerer,
		Cache:     respCache,
		Config: apply.Config{
			ResumePath: cfg.ResumePath,
			Summarize:  !cfg.DisableDescriptionFilter,
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "apply.init_failed").Msg("failed to build apply engine")
	}

	portals, breakers, err := buildPortals(cfg, &policy)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "portal.init_failed").Msg("failed to build portal clients")
	}

	runner, err := runs.New(runs.Deps{
		Portals:   portals,
		Evaluator: evaluator,
		Applier:   engine,
		Ledger:    ledger,
		Seen:      seen,
		Companies: companies,
		Breakers:  breakers,
		Exporter:  answerStore,
		Config: runs.Config{
			Plan: runs.Plan{
				Positions: cfg.Settings.Positions,
				Locations: cfg.Settings.Locations,
			},
			Parallelism:      cfg.Parallelism,
			FastWaits:        cfg.FastWaits,
			AnswerExportPath: filepath.Join(cfg.OutputDir, "answers.json"),
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "runs.init_failed").Msg("run engine preflight failed")
	}

	// Health checks
	healthMgr := health.NewManager(version.String())
	healthMgr.RegisterChecker(health.NewStoreChecker("state", func(ctx context.Context) error {
		_, err := st.Has(ctx, "healthcheck")
		return err
	}))
	healthMgr.RegisterChecker(health.NewStoreChecker("ledger", func(ctx context.Context) error {
		_, err := ledger.CountByStatus(ctx)
		return err
	}))
	for _, p := range portals {
		healthMgr.RegisterChecker(health.NewPortalChecker(p.Name(), p.SessionValid))
	}
	healthMgr.RegisterChecker(health.NewLLMChecker(llmClient.Ping))
	healthMgr.RegisterChecker(health.NewLastRunChecker(runner.LastRun))
	if cfg.ResumePath != "" {
		healthMgr.RegisterChecker(health.NewFileChecker("resume", cfg.ResumePath))
	}

	// Control plane
	apiServer := api.New(ctx, cfg, api.Deps{
		Runner:  runner,
		Ledger:  ledger,
		Answers: answerStore,
		Idem:    st,
		Health:  healthMgr,
	})

	scheduler := runs.NewScheduler(runner, cfg.RunInterval, cfg.RunOnStart, runs.Options{
		SkipApply:   cfg.SkipApply,
		Parallelism: cfg.Parallelism,
	})

	manager, err := daemon.NewManager(daemon.ServerConfig{
		Listen:        cfg.Listen,
		MetricsListen: cfg.MetricsListen,
	}, apiServer.Handler(), promhttp.Handler(), boosterlog.WithComponent("manager"))
	if err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.init_failed").Msg("failed to build daemon manager")
	}

	manager.RegisterShutdownHook("tracing", tracerProvider.Shutdown)
	manager.RegisterShutdownHook("state", func(context.Context) error { return st.Close() })
	manager.RegisterShutdownHook("ledger", func(context.Context) error { return ledger.Close() })

	// Hot reload: file watcher plus SIGHUP.
	cfgHolder := config.NewConfigHolder(cfg, loader,
		filepath.Join(cfg.DataDir, config.SettingsFile),
		filepath.Join(cfg.DataDir, config.SecretsFile),
	)
	defer cfgHolder.Stop()

	app := daemon.NewApp(logger, manager, cfgHolder, apiServer, scheduler)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon terminated with error")
	}

	logger.Info().Str("event", "shutdown.complete").Msg("boosterd stopped")
}

// buildOutboundPolicy allowlists the hosts derived from the configured
// portal and LLM endpoints plus any operator-supplied extras.
func buildOutboundPolicy(cfg config.Config) netpolicy.OutboundPolicy {
	hosts := make([]string, 0, len(cfg.Settings.JobPortals)+1+len(cfg.Outbound.AllowHosts))
	for _, p := range cfg.Settings.JobPortals {
		if u, err := url.Parse(p.BaseURL); err == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
	}
	if cfg.Settings.LLMAPIURL != "" {
		if u, err := url.Parse(cfg.Settings.LLMAPIURL); err == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
	}
	hosts = append(hosts, cfg.Outbound.AllowHosts...)

	return netpolicy.OutboundPolicy{
		Enabled: true,
		Allow: netpolicy.OutboundAllowlist{
			Hosts:   hosts,
			CIDRs:   cfg.Outbound.AllowCIDRs,
			Ports:   cfg.Outbound.AllowPorts,
			Schemes: []string{"https", "http"},
		},
	}
}

// buildPortals constructs one client and one circuit breaker per
// configured portal.
func buildPortals(cfg config.Config, policy *netpolicy.OutboundPolicy) ([]runs.Portal, map[string]runs.Breaker, error) {
	filters := portal.SearchFilters{
		Remote:           cfg.Settings.Remote,
		ExperienceLevels: cfg.Settings.ExperienceLevel.Codes(),
		JobTypes:         cfg.Settings.JobTypes.Letters(),
		DateWindow:       cfg.Settings.Date.Window(),
		Distance:         cfg.Settings.Distance,
	}

	portals := make([]runs.Portal, 0, len(cfg.Settings.JobPortals))
	breakers := make(map[string]runs.Breaker, len(cfg.Settings.JobPortals))
	for _, ps := range cfg.Settings.JobPortals {
		creds := cfg.Secrets.Portals[ps.Name]
		client, err := portal.New(ps.Name, portal.Endpoints{
			BaseURL:           ps.BaseURL,
			LoginPath:         ps.LoginPath,
			FeedPath:          ps.FeedPath,
			SearchPath:        ps.SearchPath,
			ProfilePath:       ps.ProfilePath,
			SecurityCheckPath: ps.SecurityCheckPath,
		}, portal.Credentials{
			Username: creds.Username,
			Password: creds.Password,
		}, portal.Options{
			Filters: filters,
			Policy:  policy,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("portal %s: %w", ps.Name, err)
		}
		portals = append(portals, client)
		breakers[ps.Name] = resilience.NewCircuitBreaker(ps.Name, 0, 0)
	}
	return portals, breakers, nil
}

// runHealthcheck probes the liveness endpoint of a running daemon.
func runHealthcheck(listen string) int {
	addr := listen
	if addr == "" {
		addr = ":8080"
	}
	if addr[0] == ':' {
		addr = "127.0.0.1" + addr
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "healthcheck failed: status %d\n", resp.StatusCode)
		return 1
	}
	return 0
}
