// Package agent drives the per-turn state machine: Enter → ReAct loop →
// Supervisor loop → Finalize. It owns no transport; callers hand it an
// emit callback and receive the event stream defined in bus.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/resonancehq/resonance/internal/bus"
	"github.com/resonancehq/resonance/internal/config"
	"github.com/resonancehq/resonance/internal/memory"
	"github.com/resonancehq/resonance/internal/providers"
	"github.com/resonancehq/resonance/internal/skills"
	"github.com/resonancehq/resonance/internal/tools"
	"github.com/resonancehq/resonance/internal/transcript"
)

// Turn limits. The ReAct loop gets a bounded number of think/act rounds
// per pass; the supervisor may re-open the loop up to MaxSupervisorLoops
// times before the turn finalizes regardless of its verdict.
const (
	MaxToolIterations  = 15
	MaxSupervisorLoops = 3
)

// Interruption beacons. Which one fires tells the client where in the
// round the cancel landed.
const (
	statusInterrupted       = "⛔ Task Interrupted by User."
	statusStreamInterrupted = "⛔ Generating Interrupted."
	statusToolInterrupted   = "⛔ Interrupted before tool execution."
)

// Emit receives orchestrator events. Implementations must not block; the
// gateway buffers per-client writes for that reason.
type Emit func(bus.Event)

// Host is the orchestrator for one Resonance instance. Safe for concurrent
// turns on different sessions; the bridge serializes turns per session.
type Host struct {
	cfg         *config.Store
	transcripts *transcript.Store
	memory      *memory.Store
	skills      *skills.Registry
	tools       *tools.Registry
	tracer      trace.Tracer

	// Provider override for tests; when nil the active profile decides.
	override providers.Provider

	// LLM client journal: rebuilt whenever the active profile changes.
	clientMu  sync.Mutex
	client    providers.Provider
	clientKey string

	// Active-skill state is per session, never process-global, so two
	// sessions can run different skills at once.
	skillStates sync.Map // session id → *tools.SkillState

	// Pending async extractions; Drain waits on it during shutdown.
	extractions sync.WaitGroup
}

// Config wires a Host.
type Config struct {
	Config      *config.Store
	Transcripts *transcript.Store
	Memory      *memory.Store
	Skills      *skills.Registry
	Tools       *tools.Registry

	// Provider forces a fixed LLM client (tests). Production leaves it
	// nil and lets the active profile drive client construction.
	Provider providers.Provider
}

// New creates a Host.
func New(cfg Config) *Host {
	return &Host{
		cfg:         cfg.Config,
		transcripts: cfg.Transcripts,
		memory:      cfg.Memory,
		skills:      cfg.Skills,
		tools:       cfg.Tools,
		override:    cfg.Provider,
		tracer:      otel.Tracer("resonance/agent"),
	}
}

// TurnResult summarizes a completed turn.
type TurnResult struct {
	Content        string // final assistant prose ("" when none landed)
	LastToolOutput string // raw output of the last executed tool
	Steps          int    // thinking rounds across all passes
	Interrupted    bool
}

// turn carries the per-turn working state across ReAct passes.
type turn struct {
	session  string
	userText string
	snap     config.Snapshot
	provider providers.Provider
	profile  config.Profile
	emit     Emit
	state    *tools.SkillState
	memories []string
	summary  string

	steps       int
	final       string
	lastTool    string
	interrupted bool
	log         strings.Builder // turn log fed to the fact extractor
}

// RunTurn processes one user message against a session. Events stream
// through emit as they happen; the result reports the turn's outcome.
// Cancellation of ctx is the cancel token: honored before each round,
// between stream chunks, and before each tool.
func (h *Host) RunTurn(ctx context.Context, session, userText string, emit Emit) (*TurnResult, error) {
	if emit == nil {
		emit = func(bus.Event) {}
	}
	if session == "" {
		session = transcript.MainSession
	}

	snap := h.cfg.Snapshot()
	provider, profile := h.resolveProvider(snap)

	ctx, span := h.tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("session.id", session),
		attribute.String("llm.model", profile.Model),
	))
	defer span.End()

	// 1. Record the user message before anything can fail.
	if _, err := h.transcripts.Append(session, transcript.Message{Role: transcript.RoleUser, Content: userText}); err != nil {
		emit(bus.Event{Type: bus.EventError, Content: fmt.Sprintf("Failed to record message: %v", err)})
		return nil, fmt.Errorf("append user message: %w", err)
	}

	// 2. Resolve long-term recall and the summary once; they stay fixed
	// for the whole turn while the active skill may change mid-turn.
	t := &turn{
		session:  session,
		userText: userText,
		snap:     snap,
		provider: provider,
		profile:  profile,
		emit:     emit,
		state:    h.skillState(session),
		memories: h.recall(ctx, snap, userText),
	}
	t.summary = h.transcripts.LoadSummary(session)
	fmt.Fprintf(&t.log, "User Input: %s\n", userText)

	// 3. ReAct under supervision: an INCOMPLETE verdict re-opens the
	// loop with a fresh iteration budget, at most MaxSupervisorLoops times.
	var runErr error
	supervisorLoops := 0
	for {
		if runErr = h.react(ctx, t); runErr != nil || t.interrupted {
			break
		}
		if supervisorLoops >= MaxSupervisorLoops {
			break
		}
		supervisorLoops++
		verdict := h.supervise(ctx, t)
		if verdict.Status != VerdictIncomplete {
			break
		}
		if _, err := h.transcripts.Append(session, transcript.Message{
			Role:    transcript.RoleSystem,
			Content: "[Supervisor]: " + verdict.Instruction,
		}); err != nil {
			slog.Warn("agent.supervisor.inject_failed", "session", session, "error", err)
			break
		}
		slog.Info("agent.supervisor.reopened", "session", session, "loop", supervisorLoops)
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return nil, runErr
	}

	// 4. Finalize even when interrupted: compaction and extraction keep
	// the long-term stores consistent with whatever actually happened.
	h.maybeSummarize(ctx, t)
	h.spawnExtraction(session, t.log.String())

	span.SetAttributes(attribute.Int("agent.steps", t.steps))
	return &TurnResult{
		Content:        t.final,
		LastToolOutput: t.lastTool,
		Steps:          t.steps,
		Interrupted:    t.interrupted,
	}, nil
}

// react drives think/act rounds until the model answers in prose, the
// iteration budget runs out, or the turn is cancelled. A non-nil error
// means a fatal transport or persistence failure; interruption is not an
// error and leaves t.interrupted set instead.
func (h *Host) react(ctx context.Context, t *turn) error {
	for iter := 0; iter < MaxToolIterations; iter++ {
		// 1. Cancellation gate before any new thinking round.
		if ctx.Err() != nil {
			t.emit(bus.Event{Type: bus.EventStatus, Content: statusInterrupted})
			t.interrupted = true
			return nil
		}

		t.steps++
		t.emit(bus.Event{Type: bus.EventStatus, Content: fmt.Sprintf("Thinking (Step %d)...", t.steps)})

		// 2. Rebuild the window fresh each round. Appends since the last
		// round (tool results, supervisor notes, an interrupted stream)
		// change what the sanitizer lets through, so the previous round's
		// messages slice must not be reused.
		window := contextWindow(t.snap)
		messages := make([]providers.Message, 0, window+1)
		messages = append(messages, providers.Message{
			Role:    "system",
			Content: h.buildSystemPrompt(t.snap, t.state.Active(), t.memories, t.summary, t.userText),
		})
		messages = append(messages, h.transcripts.BuildContext(t.session, window)...)

		// 3. Stream with the manifest as it stands now; a skill activated
		// in the previous round is already visible here.
		manifest := h.tools.Manifest(t.state.Active())
		req := providers.ChatRequest{
			Messages: messages,
			Tools:    manifest,
			Model:    t.profile.Model,
			Options:  map[string]interface{}{},
		}
		if t.profile.Temperature > 0 {
			req.Options[providers.OptTemperature] = t.profile.Temperature
		}
		if t.profile.MaxTokens > 0 {
			req.Options[providers.OptMaxTokens] = t.profile.MaxTokens
		}

		llmCtx, llmSpan := h.tracer.Start(ctx, "llm.stream", trace.WithAttributes(
			attribute.String("llm.model", t.profile.Model),
			attribute.Int("llm.messages", len(messages)),
			attribute.Int("llm.tools", len(manifest)),
		))
		// The provider drops partial output when the stream dies, so the
		// round keeps its own accumulation for interrupt recovery.
		var streamed strings.Builder
		resp, err := t.provider.ChatStream(llmCtx, req, func(chunk providers.StreamChunk) {
			if chunk.Content == "" {
				return
			}
			streamed.WriteString(chunk.Content)
			t.emit(bus.Event{Type: bus.EventDelta, Content: chunk.Content})
		})
		if err != nil {
			llmSpan.RecordError(err)
			llmSpan.SetStatus(codes.Error, err.Error())
			llmSpan.End()
			if ctx.Err() != nil {
				// Cancelled mid-stream. Keep whatever already streamed so
				// the next turn does not lose the thread.
				t.emit(bus.Event{Type: bus.EventStatus, Content: statusStreamInterrupted})
				if partial := streamed.String(); partial != "" {
					if _, aerr := h.transcripts.Append(t.session, transcript.Message{Role: transcript.RoleAssistant, Content: partial}); aerr != nil {
						slog.Warn("agent.turn.partial_append_failed", "session", t.session, "error", aerr)
					}
					fmt.Fprintf(&t.log, "AI Thought: %s\n", partial)
					t.final = partial
				}
				t.interrupted = true
				return nil
			}
			t.emit(bus.Event{Type: bus.EventError, Content: fmt.Sprintf("Stream context error: %v", err)})
			return fmt.Errorf("llm stream (step %d): %w", t.steps, err)
		}
		llmSpan.SetAttributes(attribute.Int("llm.tool_calls", len(resp.ToolCalls)))
		llmSpan.End()

		if resp.Content != "" {
			fmt.Fprintf(&t.log, "AI Thought: %s\n", resp.Content)
		}

		// 4. No tool calls: the prose is this pass's answer.
		if len(resp.ToolCalls) == 0 {
			if _, err := h.transcripts.Append(t.session, transcript.Message{Role: transcript.RoleAssistant, Content: resp.Content}); err != nil {
				return fmt.Errorf("append assistant message: %w", err)
			}
			t.final = resp.Content
			return nil
		}

		// 5. Record the call round before executing anything: a crash or
		// interrupt between call and result is exactly what the sanitizer
		// repairs on the next window build.
		if _, err := h.transcripts.Append(t.session, transcript.Message{
			Role:      transcript.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}); err != nil {
			return fmt.Errorf("append tool-call round: %w", err)
		}

		// 6. Execute in call order; each result lands as a tool message.
		for _, call := range resp.ToolCalls {
			if ctx.Err() != nil {
				t.emit(bus.Event{Type: bus.EventStatus, Content: statusToolInterrupted})
				t.interrupted = true
				return nil
			}
			if err := h.runTool(ctx, t, call); err != nil {
				return err
			}
		}
	}

	slog.Warn("agent.react.budget_exhausted", "session", t.session, "steps", t.steps)
	return nil
}

// runTool executes one call and records its result twice: the raw output
// goes out as a tool event, the transcript copy additionally carries a
// re-plan note for the model.
func (h *Host) runTool(ctx context.Context, t *turn, call providers.ToolCall) error {
	t.emit(bus.Event{Type: bus.EventStatus, Content: fmt.Sprintf("Executing tool: %s...", call.Name)})

	toolCtx, span := h.tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	result := h.tools.Execute(tools.WithSkillState(toolCtx, t.state), call.Name, call.Arguments)
	if result.IsError {
		span.SetStatus(codes.Error, "tool returned error")
		slog.Warn("agent.tool.error", "session", t.session, "tool", call.Name)
	}
	span.End()

	raw := result.ForLLM
	t.emit(bus.Event{Type: bus.EventTool, Name: call.Name, Content: raw})
	t.lastTool = raw
	fmt.Fprintf(&t.log, "Tool Output (%s): %.1000s\n", call.Name, raw)

	echoed := raw + "\n\n[System Note: Update your plan based on this result.]"
	if _, err := h.transcripts.Append(t.session, transcript.Message{
		Role:       transcript.RoleTool,
		Content:    echoed,
		ToolCallID: call.ID,
		Name:       call.Name,
	}); err != nil {
		return fmt.Errorf("append tool result: %w", err)
	}
	return nil
}

// resolveProvider returns the LLM client for the snapshot's active
// profile, rebuilding it when the profile changed since the last turn.
func (h *Host) resolveProvider(snap config.Snapshot) (providers.Provider, config.Profile) {
	id, prof := snap.ActiveProfile()
	if h.override != nil {
		return h.override, prof
	}

	key := id + "|" + prof.BaseURL + "|" + prof.Model + "|" + prof.APIKey
	h.clientMu.Lock()
	defer h.clientMu.Unlock()
	if h.client == nil || h.clientKey != key {
		name := id
		if name == "" {
			name = "openai"
		}
		h.client = providers.NewOpenAIProvider(name, prof.APIKey, prof.BaseURL, prof.Model)
		h.clientKey = key
		slog.Info("agent.provider.refreshed", "profile", name, "model", prof.Model)
	}
	return h.client, prof
}

// skillState returns the session's active-skill holder, creating it on
// first use. The holder lives for the process; Deactivate clears it.
func (h *Host) skillState(session string) *tools.SkillState {
	v, _ := h.skillStates.LoadOrStore(session, &tools.SkillState{})
	return v.(*tools.SkillState)
}

// recall queries long-term memory for the turn. Retrieval failures
// degrade to an empty recall rather than failing the turn.
func (h *Host) recall(ctx context.Context, snap config.Snapshot, query string) []string {
	if h.memory == nil {
		return nil
	}
	mem := snap.Config.System.Memory
	topK := mem.RetrieveTopK
	if topK <= 0 {
		topK = 3
	}
	docs, err := h.memory.Search(ctx, query, topK, mem.RAGStrategy)
	if err != nil {
		slog.Warn("agent.recall.failed", "error", err)
		return nil
	}
	return docs
}

// Drain blocks until pending background extractions finish. Called on
// shutdown so in-flight memory writes are not cut off.
func (h *Host) Drain() {
	h.extractions.Wait()
}

func contextWindow(snap config.Snapshot) int {
	if w := snap.Config.System.Memory.ContextWindow; w > 0 {
		return w
	}
	return 20
}
