// Package usecase orchestrates conversations: it retrieves knowledge,
// assembles the prompt from session history, dispatches to a provider, and
// records the completed exchange.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"llm-proxy/internal/domain"
	"llm-proxy/internal/infra/tracer"
)

// augmentFragmentLimit caps how many knowledge fragments feed the system
// prompt per exchange.
const augmentFragmentLimit = 5

// augmentExcerptLen caps the excerpt characters quoted into the system
// prompt per fragment.
const augmentExcerptLen = 500

// ProviderResolver resolves vendor names to chat providers.
type ProviderResolver interface {
	Resolve(name string) (domain.ChatProvider, error)
}

// KnowledgeSearcher retrieves fragments relevant to a query.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Fragment, error)
}

// Options select the provider, model and session for a single exchange.
// Zero values fall back to configured defaults.
type Options struct {
	Provider    string
	Model       string
	SessionID   string
	Temperature float64
	MaxTokens   int
}

// Agent is the conversation orchestrator.
type Agent struct {
	providers       ProviderResolver
	knowledge       KnowledgeSearcher
	sessions        *SessionStore
	tokens          *TokenEstimator
	logger          *slog.Logger
	defaultProvider string

	mu           sync.RWMutex
	systemPrompt string
}

// AgentConfig wires an Agent's collaborators.
type AgentConfig struct {
	Providers       ProviderResolver
	Knowledge       KnowledgeSearcher
	Sessions        *SessionStore
	Tokens          *TokenEstimator
	Logger          *slog.Logger
	DefaultProvider string
	SystemPrompt    string
}

// NewAgent creates a conversation agent.
func NewAgent(cfg AgentConfig) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewSessionStore()
	}
	return &Agent{
		providers:       cfg.Providers,
		knowledge:       cfg.Knowledge,
		sessions:        sessions,
		tokens:          cfg.Tokens,
		logger:          logger,
		defaultProvider: cfg.DefaultProvider,
		systemPrompt:    cfg.SystemPrompt,
	}
}

// SetSystemPrompt replaces the base system prompt for subsequent exchanges.
func (a *Agent) SetSystemPrompt(text string) {
	a.mu.Lock()
	a.systemPrompt = text
	a.mu.Unlock()
}

// SystemPrompt returns the current base system prompt.
func (a *Agent) SystemPrompt() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.systemPrompt
}

// History returns a copy of the session's current history window.
func (a *Agent) History(sessionID string) []domain.Message {
	return a.sessions.Get(sessionID).Messages()
}

// ClearHistory drops the session's history.
func (a *Agent) ClearHistory(sessionID string) {
	a.sessions.Get(sessionID).Clear()
}

// Respond runs one blocking exchange: retrieve knowledge for the user
// message, assemble the prompt from the augmented system prompt and session
// history, dispatch to the selected provider, and record the completed turn.
// The returned fragment refs identify the knowledge that informed the answer.
func (a *Agent) Respond(ctx context.Context, userMsg domain.Message, opts Options) (*domain.ChatResponse, []domain.FragmentRef, error) {
	const op = "Agent.Respond"

	ctx, span := tracer.StartSpan(ctx, "agent.respond",
		trace.WithAttributes(
			tracer.StringAttr("session.id", sessionID(opts)),
			tracer.StringAttr("llm.provider", opts.Provider),
		),
	)
	defer span.End()

	prep, err := a.prepare(ctx, userMsg, opts, false)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, nil, domain.WrapOp(op, err)
	}

	resp, err := prep.provider.Chat(ctx, prep.request)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, nil, domain.WrapOp(op, err)
	}

	prep.session.AppendExchange(prep.userMsg, resp.Message)
	setUsageAttrs(span, resp.Usage)
	tracer.SetOK(span)

	a.logger.Info("exchange completed",
		"session_id", prep.session.ID(),
		"provider", resp.Provider,
		"model", resp.Model,
		"fragments", len(prep.refs),
	)

	return resp, prep.refs, nil
}

// RespondStream runs one streaming exchange. The returned channel delivers
// content deltas in order and is closed after a single terminating chunk.
// The session history is updated with the assembled response on completion,
// exactly as in the blocking path. A nil sink is allowed.
func (a *Agent) RespondStream(ctx context.Context, userMsg domain.Message, opts Options, sink StreamSink) (<-chan domain.StreamChunk, []domain.FragmentRef, error) {
	const op = "Agent.RespondStream"

	ctx, span := tracer.StartSpan(ctx, "agent.respond_stream",
		trace.WithAttributes(
			tracer.StringAttr("session.id", sessionID(opts)),
			tracer.StringAttr("llm.provider", opts.Provider),
		),
	)
	defer span.End()

	prep, err := a.prepare(ctx, userMsg, opts, true)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, nil, domain.WrapOp(op, err)
	}

	deltas, err := prep.provider.ChatStream(ctx, prep.request)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, nil, domain.WrapOp(op, err)
	}

	if sink == nil {
		sink = NopSink{}
	}

	out := make(chan domain.StreamChunk, 16)
	go a.drainStream(ctx, prep, deltas, out, sink)

	tracer.SetOK(span)
	return out, prep.refs, nil
}

// preparedExchange carries the assembled state shared by both response paths.
type preparedExchange struct {
	provider domain.ChatProvider
	request  domain.ChatRequest
	session  *Session
	userMsg  domain.Message
	refs     []domain.FragmentRef
}

// prepare runs the pre-dispatch steps common to both paths: knowledge
// retrieval, prompt assembly, provider resolution, and capability checks.
func (a *Agent) prepare(ctx context.Context, userMsg domain.Message, opts Options, streaming bool) (*preparedExchange, error) {
	fragments, err := a.retrieve(ctx, userMsg)
	if err != nil {
		return nil, err
	}

	provider, err := a.resolveProvider(opts.Provider)
	if err != nil {
		return nil, err
	}

	caps := provider.Capabilities()
	if userMsg.HasImages() && !caps.Images {
		return nil, domain.NewDomainError("Agent.prepare", domain.ErrCapability,
			fmt.Sprintf("provider %s does not accept image input", caps.Name))
	}
	if streaming && !caps.Streaming {
		return nil, domain.NewDomainError("Agent.prepare", domain.ErrCapability,
			fmt.Sprintf("provider %s does not stream", caps.Name))
	}

	if userMsg.Timestamp.IsZero() {
		userMsg.Timestamp = time.Now()
	}

	sess := a.sessions.Get(opts.SessionID)
	history := sess.Messages()

	messages := make([]domain.Message, 0, len(history)+2)
	messages = append(messages, domain.Message{
		Role:    domain.RoleSystem,
		Content: a.augmentedSystemPrompt(fragments),
	})
	messages = append(messages, history...)
	messages = append(messages, userMsg)

	if est := a.tokens.Estimate(messages); est > 0 {
		a.logger.Debug("prompt assembled",
			"session_id", sess.ID(),
			"messages", len(messages),
			"est_tokens", est,
		)
	}

	refs := make([]domain.FragmentRef, len(fragments))
	for i, f := range fragments {
		refs[i] = f.Ref()
	}

	return &preparedExchange{
		provider: provider,
		request: domain.ChatRequest{
			Model:       opts.Model,
			Messages:    messages,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
			Stream:      streaming,
		},
		session: sess,
		userMsg: userMsg,
		refs:    refs,
	}, nil
}

// retrieve searches the knowledge store for fragments relevant to the user
// message text.
func (a *Agent) retrieve(ctx context.Context, userMsg domain.Message) ([]domain.Fragment, error) {
	if a.knowledge == nil {
		return nil, nil
	}
	fragments, err := a.knowledge.Search(ctx, userMsg.PlainText(), augmentFragmentLimit)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	return fragments, nil
}

// resolveProvider picks the requested provider, falling back to the
// configured default when the request names none.
func (a *Agent) resolveProvider(name string) (domain.ChatProvider, error) {
	if name == "" {
		name = a.defaultProvider
	}
	return a.providers.Resolve(name)
}

// augmentedSystemPrompt appends retrieved fragments to the base system
// prompt. Text fragments quote their excerpt; image fragments are referenced
// by name only.
func (a *Agent) augmentedSystemPrompt(fragments []domain.Fragment) string {
	base := a.SystemPrompt()
	if len(fragments) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nRelevant knowledge:\n")
	for _, f := range fragments {
		if f.Kind == domain.FragmentImage {
			fmt.Fprintf(&b, "[Image: %s]\n", f.Name)
			continue
		}
		fmt.Fprintf(&b, "[%s]: %s\n", f.Name, clipExcerpt(f.Excerpt))
	}
	return b.String()
}

// clipExcerpt bounds the quoted excerpt and marks truncation. Excerpts
// arriving at exactly the bound were cut at ingestion and get the marker too.
func clipExcerpt(text string) string {
	runes := []rune(text)
	if len(runes) < augmentExcerptLen {
		return text
	}
	return string(runes[:augmentExcerptLen]) + "..."
}

// drainStream consumes provider deltas, teeing content to the sink and the
// caller's channel. On completion the assembled text is appended to the
// session history; an abandoned stream reaches the sink's error hook and
// leaves the history untouched.
func (a *Agent) drainStream(ctx context.Context, prep *preparedExchange, deltas <-chan domain.StreamDelta, out chan<- domain.StreamChunk, sink StreamSink) {
	defer close(out)

	var (
		text  strings.Builder
		usage domain.Usage
		done  bool
	)

	for delta := range deltas {
		if delta.Err != nil {
			sink.OnError(ctx, delta.Err)
			a.logger.Warn("stream broke mid-response",
				"session_id", prep.session.ID(),
				"provider", prep.provider.Name(),
				"error", delta.Err,
			)
			select {
			case out <- domain.StreamChunk{Done: true}:
			case <-ctx.Done():
			}
			return
		}
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if err := sink.OnChunk(ctx, delta.Content); err != nil {
				a.logger.Warn("stream sink chunk failed", "error", err)
			}
			select {
			case out <- domain.StreamChunk{Delta: delta.Content}:
			case <-ctx.Done():
				sink.OnError(ctx, ctx.Err())
				return
			}
		}
		if delta.Usage != nil {
			usage = *delta.Usage
		}
		if delta.Done {
			done = true
			break
		}
	}

	if !done && ctx.Err() != nil {
		sink.OnError(ctx, ctx.Err())
		return
	}

	full := text.String()
	prep.session.AppendExchange(prep.userMsg, domain.Message{
		Role:    domain.RoleAssistant,
		Content: full,
	})

	if err := sink.OnComplete(ctx, full, usage); err != nil {
		a.logger.Warn("stream sink complete failed", "error", err)
	}

	a.logger.Info("stream completed",
		"session_id", prep.session.ID(),
		"provider", prep.provider.Name(),
		"chars", len(full),
	)

	select {
	case out <- domain.StreamChunk{Done: true}:
	case <-ctx.Done():
	}
}

// setUsageAttrs records token usage on the span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.usage.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.usage.completion_tokens", usage.CompletionTokens),
	)
}

func sessionID(opts Options) string {
	if opts.SessionID == "" {
		return DefaultSessionID
	}
	return opts.SessionID
}
