package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guardianai/patch-orchestrator/internal/config"
	"github.com/guardianai/patch-orchestrator/internal/genfix"
	"github.com/guardianai/patch-orchestrator/internal/githubapi"
	"github.com/guardianai/patch-orchestrator/internal/notify"
	"github.com/guardianai/patch-orchestrator/internal/orchestrator"
	"github.com/guardianai/patch-orchestrator/internal/patchstore"
	"github.com/guardianai/patch-orchestrator/internal/prbot"
	"github.com/guardianai/patch-orchestrator/internal/repocontext"
	"github.com/guardianai/patch-orchestrator/internal/signing"
	"github.com/guardianai/patch-orchestrator/web/api"
)

var (
	scanDryRun bool
	scanDirect bool
	servePort  int
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and autoscan loop",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)

	// scan command
	scanCmd := &cobra.Command{
		Use:   "scan REPO_URL",
		Short: "Run a single scan against a repository",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}
	scanCmd.Flags().BoolVar(&scanDryRun, "dry-run", false, "generate patches without publishing")
	scanCmd.Flags().BoolVar(&scanDirect, "direct", false, "publish even when auto PR creation is disabled")
	rootCmd.AddCommand(scanCmd)

	// repos command
	reposCmd := &cobra.Command{
		Use:   "repos",
		Short: "List the autoscan repository registry",
		RunE:  runListRepos,
	}
	reposSetCmd := &cobra.Command{
		Use:   "set REPO_URL...",
		Short: "Replace the autoscan repository registry",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSetRepos,
	}
	reposCmd.AddCommand(reposSetCmd)
	rootCmd.AddCommand(reposCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*patchstore.Store, error) {
	if dir := filepath.Dir(cfg.General.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return patchstore.New(cfg.General.DatabasePath)
}

// buildOrchestrator wires the scan pipeline from config
func buildOrchestrator(cfg *config.Config, store *patchstore.Store, notifier notify.Notifier, events orchestrator.EventFunc, logger *slog.Logger) *orchestrator.Orchestrator {
	gh := githubapi.New(cfg.GitHub.APIBase, cfg.GitHub.Token)
	fetcher := repocontext.NewFetcher(gh)
	model := genfix.NewGeminiModel(cfg.Gemini.APIBase, cfg.Gemini.APIKey, cfg.Gemini.Model)
	generator := genfix.NewGenerator(model)
	publisher := prbot.NewPublisher(gh)

	return orchestrator.New(store, fetcher, generator, publisher, notifier, events, logger, orchestrator.Options{
		AutoPR:          cfg.General.AutoPR,
		RequireApproval: cfg.General.RequireApproval,
		DemoFallback:    cfg.General.DemoFallback,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Web.Port = servePort
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// seed the registry from config if it is empty
	if len(cfg.Autoscan.Repos) > 0 {
		existing, err := store.Repos()
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			if err := store.SaveRepos(cfg.Autoscan.Repos); err != nil {
				return err
			}
			logger.Info("autoscan registry seeded from config", "repos", len(cfg.Autoscan.Repos))
		}
	}

	notifier := notify.NewSlackNotifier(cfg.Notify.SlackWebhook)
	gh := githubapi.New(cfg.GitHub.APIBase, cfg.GitHub.Token)
	signer := signing.NewSigner(cfg.Signing.Key, cfg.Signing.SignerID, store, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	// two-step wiring: the server owns the SSE hub the orchestrator
	// broadcasts into
	var server *api.Server
	events := func(event string, data any) {
		server.Broadcast(api.SSEEvent{Type: event, Data: data})
	}
	orch := buildOrchestrator(cfg, store, notifier, events, logger)
	server = api.NewServer(orch, store, signer, gh, cfg.General.AdminKey, addr, logger)

	autoscan, err := orchestrator.NewAutoscan(orch, store, cfg.Autoscan.IntervalMin, cfg.Autoscan.Cron, notifier, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})
	g.Go(func() error {
		autoscan.Run(ctx)
		return nil
	})

	return g.Wait()
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	notifier := notify.NewSlackNotifier(cfg.Notify.SlackWebhook)
	orch := buildOrchestrator(cfg, store, notifier, nil, logger)

	res, err := orch.Scan(cmd.Context(), orchestrator.Request{
		RepoURL:     args[0],
		DryRun:      scanDryRun,
		AllowDirect: scanDirect,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runListRepos(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	repos, err := store.Repos()
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		fmt.Println("No repositories registered")
		return nil
	}
	for _, repo := range repos {
		fmt.Println(repo)
	}
	return nil
}

func runSetRepos(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveRepos(args); err != nil {
		return err
	}
	fmt.Printf("Registered %d repositories\n", len(args))
	return nil
}
