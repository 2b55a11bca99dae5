package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hpungsan/nami/internal/chat"
	"github.com/hpungsan/nami/internal/config"
	"github.com/hpungsan/nami/internal/db"
	"github.com/hpungsan/nami/internal/logger"
	"github.com/hpungsan/nami/internal/mcp"
	"github.com/hpungsan/nami/internal/metrics"
	"github.com/hpungsan/nami/internal/ops"
	"github.com/hpungsan/nami/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"urge": true, "mood": true, "stats": true, "history": true,
	"chat": true, "strategies": true, "settings": true,
	"export": true, "import": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _ __   __ _ _ __ ___ (_)
  | '_ \ / _' | '_ ' _ \| |
  | | | | (_| | | | | | | |
  |_| |_|\__,_|_| |_| |_|_|

  Ride the wave of a gambling urge

  Usage: nami <command> [options]
         nami --help

  MCP server mode requires piped input.`)
}

// env holds the services shared by the CLI, the MCP server and the web UI.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *store.Store
	relay   *chat.Relay
	policy  ops.PathPolicy
	metrics *metrics.Collector
}

// setup loads configuration and opens the data store under baseDir.
// The returned cleanup closes the database.
func setup(ctx context.Context, baseDir string) (*env, func(), error) {
	if err := config.LoadEnv(baseDir); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogDevelopment, cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	m := metrics.NewCollector("nami")
	st := store.Open(ctx, store.NewSQLiteBackend(database),
		store.WithLogger(log),
		store.WithMetrics(m),
		store.WithDefaultNickname(cfg.DefaultNickname),
	)

	var gen chat.Generator
	if key := cfg.APIKey(); key != "" {
		client, err := chat.NewGeminiClient(ctx, cfg.ChatEndpoint, cfg.ChatModel, key, cfg.ChatTimeout())
		if err != nil {
			log.Warn("assistant client unavailable, chat replies will use the fallback message", zap.Error(err))
		} else {
			gen = chat.NewBreaker(client, chat.DefaultBreakerConfig(), log)
		}
	} else {
		log.Warn("assistant API key not set, chat replies will use the fallback message",
			zap.String("env", cfg.ChatAPIKeyEnv))
	}

	e := &env{
		cfg:     cfg,
		log:     log,
		store:   st,
		relay:   chat.NewRelay(st, gen, chat.WithRelayLogger(log), chat.WithRelayMetrics(m)),
		policy:  ops.NewPathPolicy(baseDir, cfg),
		metrics: m,
	}
	cleanup := func() {
		_ = log.Sync()
		database.Close()
	}
	return e, cleanup, nil
}

// mcpDeps adapts the environment to the MCP server.
func (e *env) mcpDeps() mcp.Deps {
	return mcp.Deps{Store: e.store, Relay: e.relay, Policy: e.policy}
}

// warnUnknownDisabled logs disabled tool or type names that match nothing.
func (e *env) warnUnknownDisabled() {
	if unknown := mcp.ValidateDisabledTools(e.cfg.DisabledTools); len(unknown) > 0 {
		e.log.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
	}
	if unknown := mcp.ValidateDisabledTypes(e.cfg.DisabledTypes); len(unknown) > 0 {
		e.log.Warn("unknown types in disabled_types", zap.Strings("types", unknown))
	}
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode(os.Args) && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'nami --help' for usage.\n")
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, ".nami")

	e, cleanup, err := setup(context.Background(), baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// CLI mode: known subcommand
	if isCLIMode(os.Args) {
		err = newCLIApp(e).Run(os.Args)
	} else {
		// MCP server mode (default)
		e.warnUnknownDisabled()
		err = mcp.Run(e.mcpDeps(), e.cfg, Version)
	}
	cleanup()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
