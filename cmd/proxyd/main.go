// Command proxyd runs the chat proxy as an interactive daemon: it reads user
// turns from stdin, augments them with retrieved knowledge, and streams
// provider responses to stdout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"llm-proxy/internal/adapter/knowledge"
	"llm-proxy/internal/convlog"
	"llm-proxy/internal/domain"
	"llm-proxy/internal/infra/config"
	"llm-proxy/internal/infra/logger"
	"llm-proxy/internal/infra/tracer"
	"llm-proxy/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "config.yaml", "path to config file")
		provider   = flag.String("provider", "", "provider name (defaults to config default_provider)")
		model      = flag.String("model", "", "model identifier (defaults to provider model)")
		session    = flag.String("session", "", "session identifier")
		noStream   = flag.Bool("no-stream", false, "use blocking completions instead of streaming")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	comps, err := initComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	if comps.convlog != nil {
		defer comps.convlog.Close()
	}

	for _, caps := range comps.registry.ListConfigured() {
		log.Info("provider ready",
			"name", caps.Name,
			"images", caps.Images,
			"streaming", caps.Streaming,
		)
	}

	opts := usecase.Options{
		Provider:  *provider,
		Model:     *model,
		SessionID: *session,
	}

	return chatLoop(ctx, comps, opts, !*noStream, log)
}

// chatLoop reads one user turn per line until stdin closes or the context is
// cancelled.
func chatLoop(ctx context.Context, comps *components, opts usecase.Options, stream bool, log *slog.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("ready (ctrl-d to exit, /clear to reset history)")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if err := runCommand(ctx, comps, opts, line); err != nil {
				log.Error("command failed", "error", err, "code", domain.ErrorCodeOf(err))
			}
			continue
		}

		userMsg := domain.Message{Role: domain.RoleUser, Content: line, Timestamp: time.Now()}

		if stream {
			if err := streamTurn(ctx, comps, userMsg, opts, log); err != nil {
				log.Error("exchange failed", "error", err, "code", domain.ErrorCodeOf(err))
			}
			continue
		}

		resp, refs, err := comps.agent.Respond(ctx, userMsg, opts)
		if err != nil {
			log.Error("exchange failed", "error", err, "code", domain.ErrorCodeOf(err))
			continue
		}
		persistExchange(ctx, comps, opts, userMsg, resp, log)
		printRefs(refs)
		fmt.Println(resp.Message.Content)
	}
}

// runCommand handles the slash commands of the chat loop.
func runCommand(ctx context.Context, comps *components, opts usecase.Options, line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/clear":
		comps.agent.ClearHistory(opts.SessionID)
		fmt.Println("history cleared")

	case "/search":
		frags, err := comps.knowledge.Search(ctx, arg, knowledge.SearchLimit)
		if err != nil {
			return err
		}
		if len(frags) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, f := range frags {
			fmt.Printf("%.2f  %-7s %s\n", f.Relevance, f.Kind, f.Name)
		}

	case "/add":
		if comps.documents == nil {
			return fmt.Errorf("document store not available with this knowledge backend")
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return err
		}
		rec, err := comps.documents.Add(filepath.Base(arg), data)
		if err != nil {
			return err
		}
		fmt.Printf("added %s (%s, %d bytes)\n", rec.ID, rec.Name, rec.Size)

	case "/docs":
		if comps.documents == nil {
			return fmt.Errorf("document store not available with this knowledge backend")
		}
		for _, rec := range comps.documents.List() {
			fmt.Printf("%s  %-7s %8d  %s\n", rec.ID, rec.Kind, rec.Size, rec.Name)
		}
		stats := comps.documents.Stats()
		fmt.Printf("%d documents, %d bytes\n", stats.Count, stats.TotalBytes)

	case "/rm":
		if comps.documents == nil {
			return fmt.Errorf("document store not available with this knowledge backend")
		}
		if err := comps.documents.Delete(arg); err != nil {
			return err
		}
		fmt.Println("deleted", arg)

	case "/providers":
		for _, caps := range comps.registry.ListConfigured() {
			fmt.Printf("%-10s images=%-5v streaming=%v\n", caps.Name, caps.Images, caps.Streaming)
		}

	default:
		fmt.Println("commands: /clear /search <query> /add <file> /docs /rm <id> /providers")
	}
	return nil
}

func streamTurn(ctx context.Context, comps *components, userMsg domain.Message, opts usecase.Options, log *slog.Logger) error {
	var sink usecase.StreamSink = usecase.NopSink{}
	if comps.convlog != nil {
		sessionID := opts.SessionID
		if sessionID == "" {
			sessionID = usecase.DefaultSessionID
		}
		if _, err := comps.convlog.Append(ctx, sessionID, domain.RoleUser, userMsg.Content); err != nil {
			return err
		}
		sink = convlog.NewSink(comps.convlog, sessionID, log)
	}

	chunks, refs, err := comps.agent.RespondStream(ctx, userMsg, opts, sink)
	if err != nil {
		return err
	}
	printRefs(refs)

	for chunk := range chunks {
		if chunk.Delta != "" {
			fmt.Print(chunk.Delta)
		}
	}
	fmt.Println()
	return nil
}

// persistExchange writes a completed blocking exchange to the conversation
// log, when one is configured.
func persistExchange(ctx context.Context, comps *components, opts usecase.Options, userMsg domain.Message, resp *domain.ChatResponse, log *slog.Logger) {
	if comps.convlog == nil {
		return
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = usecase.DefaultSessionID
	}
	if _, err := comps.convlog.Append(ctx, sessionID, domain.RoleUser, userMsg.Content); err != nil {
		log.Warn("persist user message failed", "error", err)
	}
	if _, err := comps.convlog.Append(ctx, sessionID, domain.RoleAssistant, resp.Message.Content); err != nil {
		log.Warn("persist assistant message failed", "error", err)
	}
}

func printRefs(refs []domain.FragmentRef) {
	for _, ref := range refs {
		fmt.Printf("  [knowledge: %s (%.2f)]\n", ref.Name, ref.Relevance)
	}
}
