package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/petasbytes/toolstream/internal/bridge"
	"github.com/petasbytes/toolstream/internal/config"
	"github.com/petasbytes/toolstream/internal/provider"
	"github.com/petasbytes/toolstream/internal/runner"
	"github.com/petasbytes/toolstream/internal/server"
	"github.com/petasbytes/toolstream/memory"
	"github.com/petasbytes/toolstream/tools"
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to a TOML config file")
		conversation = flag.String("conversation", "default", "conversation id for the interactive session")
		providerName = flag.String("provider", "", "provider override (anthropic, openai, openrouter, gemini, ollama)")
		model        = flag.String("model", "", "model override")
		serve        = flag.Bool("serve", false, "serve the HTTP API instead of the interactive session")
		debug        = flag.Bool("debug", false, "enable debug logging")
		noColor      = flag.Bool("no-color", false, "disable ANSI colors")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*configPath, *conversation, *providerName, *model, *serve, !*noColor, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, conversation, providerName, model string, serve, color bool, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if providerName != "" {
		cfg.Provider.Name = providerName
		if model == "" {
			cfg.Provider.Model = provider.DefaultModels[providerName]
		}
	}
	if model != "" {
		cfg.Provider.Model = model
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	registry, closeTools, err := openTools(cfg.Tools, logger)
	if err != nil {
		return err
	}
	defer closeTools()

	choice, _ := cfg.ToolChoice()
	creds := cfg.ProviderCredentials()
	adapters := func(name, m string) (provider.Adapter, error) {
		return provider.New(creds, name, m, provider.WithLogger(logger))
	}
	r := runner.New(adapters, registry, store, registry.Specs(), runner.Config{
		MaxIterations:   cfg.Loop.MaxIterations,
		Temperature:     cfg.Provider.Temperature,
		MaxTokens:       cfg.Provider.MaxTokens,
		ToolChoice:      choice,
		WindowBudget:    cfg.Loop.TokenBudget,
		SystemPrompt:    cfg.Loop.SystemPrompt,
		DefaultProvider: cfg.Provider.Name,
		DefaultModel:    cfg.Provider.Model,
	})
	r.Logger = logger

	// Set up graceful shutdown on Ctrl-C (SIGINT) / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serve {
		return server.New(r, store, logger).ListenAndServe(ctx, cfg.Server.Addr)
	}
	return repl(ctx, r, conversation, cfg.Provider.Name, cfg.Provider.Model, registry.Names(), color)
}

func openStore(cfg config.StoreConfig) (memory.Store, func(), error) {
	switch cfg.Driver {
	case config.StoreFile:
		s, err := memory.NewFileStore(cfg.Path)
		return s, func() {}, err
	case config.StoreSQLite:
		s, err := memory.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return memory.NewInMemory(), func() {}, nil
	}
}

// openTools builds the registry; without a database it advertises no tools.
func openTools(cfg config.ToolsConfig, logger *slog.Logger) (*tools.Registry, func(), error) {
	opts := []tools.RegistryOption{tools.WithLogger(logger), tools.WithTimeout(cfg.Timeout)}
	if cfg.RatePerSecond > 0 {
		opts = append(opts, tools.WithRateLimit(cfg.RatePerSecond, cfg.Burst))
	}
	if cfg.Database == "" {
		r, err := tools.NewRegistry(nil, opts...)
		return r, func() {}, err
	}
	sqlTools, err := tools.OpenSQLTools(cfg.Database, cfg.MaxRows)
	if err != nil {
		return nil, nil, err
	}
	r, err := tools.NewRegistry(sqlTools.Definitions(), opts...)
	if err != nil {
		_ = sqlTools.Close()
		return nil, nil, err
	}
	return r, func() { _ = sqlTools.Close() }, nil
}

func repl(ctx context.Context, r *runner.Runner, conversation, providerName, model string, toolNames []string, color bool) error {
	fmt.Printf("Chatting with %s/%s in conversation %q (Ctrl-C to quit)\n", providerName, model, conversation)
	if len(toolNames) > 0 {
		fmt.Printf("Tools: %s\n", strings.Join(toolNames, ", "))
	}

	// stdin reader goroutine -> lines into channel
	inputCh := make(chan string)
	scanner := bufio.NewScanner(os.Stdin)
	go func() {
		defer close(inputCh)
		for scanner.Scan() {
			select {
			case inputCh <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	prompt := "You: "
	if color {
		prompt = "\u001b[94mYou\u001b[0m: "
	}
	for {
		fmt.Print(prompt)
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Println("\nExiting...")
			return nil
		case line, ok = <-inputCh:
			if !ok {
				return scanner.Err()
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		sink := bridge.NewTextWriter(os.Stdout, color)
		// Turn failures already reached the terminal as an error event.
		if err := r.RunTurn(ctx, runner.TurnRequest{ConversationID: conversation, Content: line}, sink); err != nil {
			slog.Debug("turn ended with error", "error", err)
		}
	}
}
