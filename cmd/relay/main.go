// Command relay runs one agent turn against a data-analysis workspace.
//
// Usage:
//
//	ANTHROPIC_API_KEY=sk-... relay [flags] prompt...
//	GEMINI_API_KEY=gk-...   relay [flags] prompt...
//
// The prompt is read from stdin when no arguments are given.
//
// Flags:
//
//	-config string        Path to TOML config (default: relay.toml when present)
//	-provider string      Provider: anthropic, gemini (auto-detected from env vars if omitted)
//	-model string         Model ID (default: provider default)
//	-api-key string       API key (overrides provider's env var)
//	-conversation string  Conversation ID to resume
//	-replay string        Serve model steps from a recorded event log
//	-record string        Record model events to a JSON lines file
//	-list                 List stored conversations and exit
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/agent"
	"github.com/fwojciec/relay/builtin"
	"github.com/fwojciec/relay/compact"
	"github.com/fwojciec/relay/heal"
	relayjson "github.com/fwojciec/relay/json"
	"github.com/fwojciec/relay/jsonschema"
	relayprom "github.com/fwojciec/relay/prometheus"
	"github.com/fwojciec/relay/retry"
	"github.com/fwojciec/relay/turn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/language"
	_ "modernc.org/sqlite"
)

const statusWidth = 100

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = flag.String("config", "", "Path to TOML config (default: relay.toml when present)")
		providerFlag = flag.String("provider", "", "Provider: anthropic, gemini (auto-detected from env vars if omitted)")
		model        = flag.String("model", "", "Model ID (provider-specific)")
		apiKey       = flag.String("api-key", "", "API key (overrides provider's env var)")
		convID       = flag.String("conversation", "", "Conversation ID to resume")
		replayPath   = flag.String("replay", "", "Serve model steps from a recorded event log")
		recordPath   = flag.String("record", "", "Record model events to a JSON lines file")
		list         = flag.Bool("list", false, "List stored conversations and exit")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *providerFlag != "" {
		cfg.Provider = *providerFlag
	}
	if *model != "" {
		cfg.Model = *model
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st, closer, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closer.Close()

	if *list {
		return listConversations(ctx, os.Stdout, st, 50)
	}

	prompt, err := readPrompt(flag.Args(), os.Stdin)
	if err != nil {
		return err
	}

	var provider relay.Provider
	if *replayPath != "" {
		provider, err = openReplay(*replayPath)
	} else {
		provider, err = resolveProvider(ctx, cfg.Provider, *apiKey,
			os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("GEMINI_API_KEY"))
	}
	if err != nil {
		return err
	}
	tag, err := language.Parse(cfg.Language)
	if err != nil {
		return fmt.Errorf("config: language: %w", err)
	}
	provider = jsonschema.New(provider, jsonschema.WithLanguage(tag), jsonschema.WithLogger(logger))

	execOpts := []builtin.Option{builtin.WithRoot(cfg.Workspace), builtin.WithLogger(logger)}
	if cfg.Database != "" {
		db, err := sql.Open("sqlite", cfg.Database)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		execOpts = append(execOpts, builtin.WithDB(db))
	}
	executor := builtin.NewExecutor(execOpts...)

	reg := prometheus.NewRegistry()
	metrics := relayprom.New(reg)
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer srv.Shutdown(context.Background())
	}

	conv, err := loadConversation(ctx, st, *convID, time.Now())
	if err != nil {
		return err
	}
	conv.Messages = append(conv.Messages, relay.NewUserText(prompt))
	known := len(conv.Responses)

	out := newPrinter(os.Stdout, os.Stderr, relay.DefaultTheme(), statusWidth)
	handlers := []func(relay.Event){out.Event, metrics.ObserveEvent}
	if *recordPath != "" {
		rec, err := newRecorder(*recordPath)
		if err != nil {
			return err
		}
		defer rec.Close()
		handlers = append(handlers, rec.Event)
	}

	retryOpts := []retry.Option{
		retry.WithMaxRetries(cfg.MaxRetries),
		retry.WithObserver(func(err *heal.RetryableError, attempt int) {
			out.Retry(err, attempt)
			metrics.ObserveRetry(err, attempt)
		}),
	}
	if c := cfg.Compact; c.MaxMessages > 0 || c.MaxTokens > 0 {
		retryOpts = append(retryOpts, retry.WithCompressor(compact.Compactor{
			MaxMessages: c.MaxMessages,
			MaxTokens:   c.MaxTokens,
			KeepRecent:  c.KeepRecent,
		}))
	}

	loop := agent.New(provider, executor,
		agent.WithStore(st),
		agent.WithMaxSteps(cfg.MaxSteps),
		agent.WithLogger(logger),
		agent.WithRetryOptions(retryOpts...),
		agent.WithTurnOptions(turn.WithSaveHook(metrics.ObserveSave)),
	)
	logger.Info("turn started", "conversation_id", conv.ID, "provider", cfg.Provider, "model", cfg.Model)
	err = loop.Run(ctx, conv, executor.Tools(),
		agent.WithModel(cfg.Model),
		agent.WithSystemPrompt(cfg.SystemPrompt),
		agent.WithEventHandler(func(e relay.Event) {
			for _, h := range handlers {
				h(e)
			}
		}),
	)
	if err != nil {
		return err
	}
	out.Responses(conv.Responses[known:])
	fmt.Fprintf(os.Stderr, "conversation %s\n", conv.ID)
	return nil
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = strings.TrimSpace(string(b))
	}
	if prompt == "" {
		return "", errors.New("empty prompt: pass it as arguments or on stdin")
	}
	return prompt, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return srv
}

// recorder writes provider events to a JSON lines log that -replay can serve.
// Tool results and the turn finish are produced locally and are skipped.
type recorder struct {
	f   *os.File
	enc *relayjson.Encoder
	err error
}

func newRecorder(path string) (*recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	return &recorder{f: f, enc: relayjson.NewEncoder(f)}, nil
}

func (r *recorder) Event(evt relay.Event) {
	switch evt.(type) {
	case relay.EventToolResult, relay.EventFinish:
		return
	}
	if r.err == nil {
		r.err = r.enc.Encode(evt)
	}
}

func (r *recorder) Close() error {
	if err := r.f.Close(); err != nil {
		return err
	}
	if r.err != nil {
		return fmt.Errorf("record: %w", r.err)
	}
	return nil
}
