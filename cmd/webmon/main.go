// Package main is the CLI entry point for webmon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/web_mon/internal/config"
	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
	"github.com/eliteGoblin/focusd/web_mon/internal/server"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "webmon",
	Short: "Web monitor - keeps browsing on task during focus sessions",
	Long: `webmon is a local gatekeeper for the browser. Outside a focus session
every site is redirected to an interstitial. Once you pick a focus domain and
answer a few questions, each new site is classified and unproductive ones are
blocked until the session window ends.`,
	Version: Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gatekeeper in the foreground",
	RunE:  runServe,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gatekeeper in the background",
	RunE:  runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the gatekeeper runs and the current session",
	RunE:  runStatus,
}

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List selectable focus domains",
	RunE:  runDomains,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runConfigInit,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	jsonOutput bool
	forceInit  bool
)

func init() {
	execMode := infra.DetectExecMode()
	rootCmd.PersistentFlags().StringVar(&configPath, "config", execMode.ConfigPath, "Path to config.yaml")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(domainsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, *infra.ExecModeConfig, error) {
	execMode := infra.DetectExecMode()
	cfg, err := config.Load(configPath, execMode.DataDir)
	if err != nil {
		return nil, nil, err
	}
	return cfg, execMode, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, execMode, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	store, err := infra.OpenStateStore(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open state store", zap.Error(err))
		return err
	}
	defer store.Close()
	if err := store.SetMeta("app_version", Version); err != nil {
		logger.Warn("failed to record version", zap.Error(err))
	}
	if err := store.SetMeta("booted_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		logger.Warn("failed to record boot time", zap.Error(err))
	}

	catalog := policy.NewCatalog(buildRegistry(cfg))
	clock := domain.SystemClock{}

	table := infra.NewRuleTable()
	rules := usecase.NewRuleSynchronizer(usecase.SynchronizerConfig{
		InterstitialURL: cfg.InterstitialURL(),
		Exclusions:      serviceHosts(cfg.BaseURL(), cfg.ClassifierURL, cfg.QuestionURL),
	}, table, store, logger)

	cache := usecase.NewClassificationCache()
	sessions := usecase.NewSessionManager(cache, rules, store, catalog, clock, logger)

	httpClient := &http.Client{Timeout: cfg.ClassifyTimeout + 5*time.Second}
	classifier := infra.NewHTTPClassifier(cfg.ClassifierURL, httpClient)
	questions := infra.NewHTTPQuestionService(cfg.QuestionURL, httpClient)
	tabs := infra.NewTabCommandQueue(infra.DefaultTabQueueSize)

	dispatcher := usecase.NewNavigationDispatcher(usecase.DispatcherConfig{
		InterstitialURL: cfg.InterstitialURL(),
		SelfOrigins:     []string{cfg.BaseURL(), cfg.ClassifierURL, cfg.QuestionURL},
		ClassifyTimeout: cfg.ClassifyTimeout,
	}, sessions, cache, classifier, tabs, logger)

	questionnaire := usecase.NewQuestionnaire(usecase.QuestionnaireConfig{
		MaxTries:       cfg.Questions.MaxTries,
		InitialBackoff: cfg.Questions.InitialBackoff,
		MaxBackoff:     cfg.Questions.MaxBackoff,
	}, questions, sessions, logger)

	api := server.New(server.Config{
		Listen:          cfg.Listen,
		AnalyzingReload: cfg.AnalyzingReload,
	}, sessions, dispatcher, questionnaire, table, tabs, catalog, store, logger)

	sweeper := daemon.NewSweeper(daemon.SweeperConfig{Interval: cfg.SweepInterval}, sessions, clock, logger)
	pidFile := infra.NewPIDFile(execMode.PIDPath, infra.NewProcessChecker())

	gatekeeper := daemon.NewGatekeeper(daemon.GatekeeperConfig{
		Listen:          cfg.Listen,
		AppVersion:      Version,
		ResumeOnRestart: cfg.ResumeOnRestart,
	}, sessions, sweeper, api, pidFile, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting webmon",
		zap.String("version", Version),
		zap.String("mode", string(execMode.Mode)),
		zap.String("config", configPath),
		zap.String("classifier", cfg.ClassifierURL),
		zap.String("questions", cfg.QuestionURL))

	return gatekeeper.Run(ctx)
}

func runStart(cmd *cobra.Command, args []string) error {
	_, execMode, err := loadConfig()
	if err != nil {
		return err
	}

	pidFile := infra.NewPIDFile(execMode.PIDPath, infra.NewProcessChecker())
	if info, alive := pidFile.Alive(); alive {
		fmt.Printf("webmon is already running (pid %d, %s)\n", info.PID, info.Listen)
		return nil
	}

	pid, err := daemon.StartDaemon("", configPath)
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	fmt.Printf("webmon started (pid %d)\n", pid)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, execMode, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("\n=== webmon Status ===")
	fmt.Printf("Execution mode: %s\n", execMode.Mode)
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Data dir: %s\n", cfg.DataDir)

	pidFile := infra.NewPIDFile(execMode.PIDPath, infra.NewProcessChecker())
	info, alive := pidFile.Alive()
	if !alive {
		fmt.Println("Status: NOT RUNNING")
		fmt.Println("=====================")
		return nil
	}

	fmt.Println("Status: RUNNING")
	fmt.Printf("PID: %d\n", info.PID)
	fmt.Printf("Listen: %s\n", info.Listen)
	if info.StartedAt > 0 {
		fmt.Printf("Uptime: %s\n", time.Since(time.Unix(info.StartedAt, 0)).Round(time.Second))
	}

	snap, err := fetchSnapshot(cmd.Context(), "http://"+info.Listen)
	if err != nil {
		fmt.Printf("Session: unknown (%v)\n", err)
	} else {
		printSnapshot(snap)
	}
	fmt.Println("=====================")
	return nil
}

func runDomains(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("\n=== Focus Domains ===")
	for _, p := range buildRegistry(cfg).GetAll() {
		fmt.Printf("\n[%s] %s\n", p.ID(), p.Name())
		if p.Description() != "" {
			fmt.Printf("  %s\n", p.Description())
		}
		fmt.Printf("  Default window: %s\n", p.DefaultDuration())
	}
	fmt.Println("\n=====================")
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	cfg := config.Default(infra.DetectExecMode().DataDir)
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", configPath)
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("webmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// buildRegistry merges configured domains over the built-in ones.
func buildRegistry(cfg *config.Config) *policy.Registry {
	registry := policy.NewRegistry()
	for _, d := range cfg.Domains {
		registry.Register(policy.NewConfiguredPolicy(d.ID, d.Name, d.Description, d.DefaultDuration))
	}
	return registry
}

// serviceHosts returns the hosts the redirect rule must never capture.
func serviceHosts(origins ...string) []string {
	seen := make(map[string]bool)
	var hosts []string
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil || u.Hostname() == "" {
			continue
		}
		h := u.Hostname()
		if !seen[h] {
			seen[h] = true
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func fetchSnapshot(ctx context.Context, baseURL string) (*domain.Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/session", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %s", resp.Status)
	}

	var snap domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func printSnapshot(snap *domain.Snapshot) {
	fmt.Printf("Session: %s\n", snap.State)
	if snap.Domain != "" {
		fmt.Printf("Focus domain: %s\n", snap.Domain)
	}
	if !snap.EndTime.IsZero() {
		fmt.Printf("Window ends in: %s\n", time.Until(snap.EndTime).Round(time.Second))
	}
	if len(snap.BlockedDestinations) > 0 {
		fmt.Println("Blocked destinations:")
		for _, d := range snap.BlockedDestinations {
			fmt.Printf("  - %s\n", d)
		}
	}
	if snap.LastError != "" {
		fmt.Printf("Last error: %s\n", snap.LastError)
	}
}

func createLogger(cfg *config.Config) *zap.Logger {
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{cfg.LogFile()}
	zc.ErrorOutputPaths = []string{cfg.LogFile()}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
		zc.Level = level
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile()), 0700); err != nil {
		logger, _ := zap.NewProduction()
		return logger
	}
	logger, err := zc.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
