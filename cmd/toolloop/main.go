// Command toolloop answers questions with a tool-calling model.
//
// Usage:
//
//	toolloop [-config path] [-conversation id] [question...]
//
// With a question on the command line a single run is performed. Without
// one, questions are read line by line from stdin and continue the same
// conversation; with storage disabled that conversation lives in memory
// until the command exits. Configuration is loaded from the YAML file and TOOLLOOP_*
// environment variables (see pkg/config).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/toolloop/pkg/api"
	"github.com/rhuss/toolloop/pkg/config"
	"github.com/rhuss/toolloop/pkg/debug"
	"github.com/rhuss/toolloop/pkg/engine"
	"github.com/rhuss/toolloop/pkg/provider"
	"github.com/rhuss/toolloop/pkg/provider/litellm"
	"github.com/rhuss/toolloop/pkg/provider/openaicompat"
	"github.com/rhuss/toolloop/pkg/storage"
	"github.com/rhuss/toolloop/pkg/storage/memory"
	"github.com/rhuss/toolloop/pkg/storage/postgres"
	"github.com/rhuss/toolloop/pkg/storage/sqlite"
	"github.com/rhuss/toolloop/pkg/tools"
	"github.com/rhuss/toolloop/pkg/tools/builtins/clock"
	"github.com/rhuss/toolloop/pkg/tools/builtins/websearch"
	"github.com/rhuss/toolloop/pkg/tools/mcp"
	"github.com/rhuss/toolloop/pkg/tools/registry"
)

// errRunFailed reports a run failure that has already been printed.
var errRunFailed = errors.New("run failed")

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, errRunFailed) {
			color.Red("Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the YAML config file")
	conversationID := flag.String("conversation", "", "continue a stored conversation")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.Metrics.Enabled {
		srv := serveMetrics(cfg.Observability.Metrics)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	prov, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	store = sessionStore(store, query == "")
	if store != nil {
		defer store.Close()
	}

	reg, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer reg.Close()

	eng, err := engine.New(prov, reg, store, cfg.EngineConfig())
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	out := newTerminal(os.Stdout, cfg.Engine.Stream)

	if query != "" {
		if _, err := out.ask(ctx, eng, query, *conversationID); err != nil {
			return errRunFailed
		}
		return nil
	}
	return repl(ctx, eng, out, os.Stdin, *conversationID)
}

// repl reads one question per line and keeps the conversation going.
// Failed runs are reported and the loop continues.
func repl(ctx context.Context, eng *engine.Engine, out *terminal, in io.Reader, conversationID string) error {
	prompt := color.New(color.FgCyan, color.Bold)
	scanner := bufio.NewScanner(in)
	for {
		prompt.Fprint(out.w, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out.w)
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		switch query {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		res, _ := out.ask(ctx, eng, query, conversationID)
		if ctx.Err() != nil {
			return nil
		}
		if res.ConversationID != "" {
			conversationID = res.ConversationID
		}
	}
}

func serveMetrics(cfg config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		slog.Info("metrics endpoint starting", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics endpoint failed", "error", err)
		}
	}()
	return srv
}

func newProvider(cfg *config.Config) (provider.Provider, error) {
	if cfg.Provider.Kind == config.ProviderLiteLLM {
		return litellm.New(cfg.LiteLLMConfig())
	}
	return openaicompat.New(cfg.TransportConfig())
}

// sessionStore gives an interactive session without configured storage a
// process-local store, so follow-up questions see the earlier turns.
func sessionStore(store storage.HistoryStore, interactive bool) storage.HistoryStore {
	if store != nil || !interactive {
		return store
	}
	debug.Log("storage", "no history store configured, keeping the session in memory")
	return memory.New(0)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.HistoryStore, error) {
	switch cfg.Storage.Type {
	case config.StorageMemory:
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.Storage.MaxSize)
		return memory.New(cfg.Storage.MaxSize), nil
	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		slog.Info("storage enabled", "type", "sqlite", "path", cfg.Storage.SQLite.Path)
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.New(ctx, cfg.PostgresConfig())
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres")
		return store, nil
	default:
		slog.Info("storage disabled")
		return nil, nil
	}
}

func buildRegistry(ctx context.Context, cfg *config.Config) (*registry.Registry, error) {
	var sets []tools.Set
	if cfg.Tools.Clock.Enabled {
		sets = append(sets, clock.New())
	}
	if cfg.Tools.WebSearch.Enabled {
		ws, err := websearch.New(cfg.WebSearchConfig())
		if err != nil {
			return nil, err
		}
		sets = append(sets, ws)
	}

	mcpSets, err := mcp.Open(ctx, cfg.MCPServers())
	if err != nil {
		return nil, err
	}
	for _, s := range mcpSets {
		sets = append(sets, s)
	}

	reg, err := registry.Build(sets...)
	if err != nil {
		for _, s := range mcpSets {
			s.Close()
		}
		return nil, err
	}
	return reg, nil
}

// terminal renders runs on a color terminal.
type terminal struct {
	w      io.Writer
	stream bool

	answer *color.Color
	tool   *color.Color
	dim    *color.Color
	warn   *color.Color
}

func newTerminal(w io.Writer, stream bool) *terminal {
	return &terminal{
		w:      w,
		stream: stream,
		answer: color.New(color.FgGreen),
		tool:   color.New(color.FgYellow),
		dim:    color.New(color.Faint, color.Italic),
		warn:   color.New(color.FgYellow, color.Bold),
	}
}

func (t *terminal) observer() engine.Observer {
	return engine.ObserverFuncs{
		TextDelta: func(delta string) { t.answer.Fprint(t.w, delta) },
		Restart:   func() { t.dim.Fprintln(t.w, " (connection lost, retrying)") },
		ToolCall: func(call api.ToolCall) {
			t.tool.Fprintf(t.w, "  -> %s(%s)\n", call.Name, call.Arguments)
		},
		ToolResult: func(res tools.ToolResult) {
			if res.IsError {
				color.New(color.FgRed).Fprintf(t.w, "  <- %s\n", debug.Truncate(res.Output, 200))
				return
			}
			t.dim.Fprintf(t.w, "  <- %s\n", debug.Truncate(res.Output, 200))
		},
	}
}

// ask performs one run and prints its outcome.
func (t *terminal) ask(ctx context.Context, eng *engine.Engine, query, conversationID string) (*engine.Result, error) {
	res, err := eng.Run(ctx, engine.RunRequest{
		Query:          query,
		ConversationID: conversationID,
		Observer:       t.observer(),
	})

	switch res.Status {
	case engine.StatusSuccess:
		if t.stream {
			fmt.Fprintln(t.w)
		} else {
			t.answer.Fprintln(t.w, res.Content)
		}
	case engine.StatusWarning:
		if t.stream {
			fmt.Fprintln(t.w)
		}
		t.warn.Fprintf(t.w, "Stopped after %d interactions without a final answer.\n", res.Interactions)
		if res.Content != "" && !t.stream {
			t.answer.Fprintln(t.w, res.Content)
		}
	case engine.StatusError:
		color.Red("Error: %v\n", err)
	}

	t.dim.Fprintf(t.w, "[%s, %d interactions, %d tokens]\n",
		res.ConversationID, res.Interactions, res.Usage.TotalTokens)
	return res, err
}
