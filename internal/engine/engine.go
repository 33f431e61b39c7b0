// Package engine is the reference execution layer for the orchestration
// core: it runs each admitted agent as a goroutine, routes skill calls
// through the admission controller, delivers resume updates, and owns the
// blocking wait loop around the result collector. The core packages stay
// free of suspension points; everything that blocks lives here.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/castellan-ai/castellan/internal/admission"
	"github.com/castellan-ai/castellan/internal/audit"
	"github.com/castellan-ai/castellan/internal/collect"
	"github.com/castellan-ai/castellan/internal/dispatch"
	"github.com/castellan-ai/castellan/internal/lifecycle"
	"github.com/castellan-ai/castellan/internal/logging"
	"github.com/castellan-ai/castellan/pkg/models"
)

// pollInterval is how often the wait loop re-checks the collector.
const pollInterval = 25 * time.Millisecond

// AgentFunc is the body of an agent. It runs on its own goroutine and
// returns the agent's result text. A nil error completes the agent; a
// non-nil error fails it; context.DeadlineExceeded times it out.
type AgentFunc func(ctx context.Context, h *Handle) (string, error)

// Config assembles an Engine. Catalog, Audit and Fuse tunables are
// required; zero limits fall back to the admission defaults.
type Config struct {
	// Catalog resolves skill names at dispatch.
	Catalog dispatch.SkillCatalog
	// Audit records admitted dispatches.
	Audit audit.Store
	// Fuse holds the level-1 tunables.
	Fuse admission.FuseConfig
	// TurnAgents, TurnSkillCalls, AgentSkillCalls are the budget ceilings.
	TurnAgents      int
	TurnSkillCalls  int
	AgentSkillCalls int
	// ConversationCalls / ConversationWindow bound the level-4 rate.
	ConversationCalls  int
	ConversationWindow time.Duration
	// Logger receives the verbose trail. Nil disables debug logging.
	Logger *logging.DebugLogger
}

// Engine drives one conversation turn. It is the single writer for the
// turn's and conversation's admission state: agents call through the engine,
// which serializes budget mutations behind its mutex.
type Engine struct {
	coordinator *dispatch.Coordinator
	registry    *lifecycle.Registry
	controller  *admission.Controller
	collector   *collect.Collector
	logger      *logging.DebugLogger

	// mu guards the admission value states below.
	mu      sync.Mutex
	turn    admission.TurnBudget
	conv    admission.ConversationRate
	budgets map[string]admission.AgentBudget

	// evMu guards events against emits racing Close. Separate from mu,
	// which is held while emitting on the dispatch path.
	evMu     sync.Mutex
	evClosed bool
	events   chan Event
	dropped  atomic.Uint64
	wg       sync.WaitGroup
}

// New creates an Engine for one conversation turn.
func New(cfg Config) *Engine {
	registry := lifecycle.NewRegistry()
	coordinator := dispatch.New(cfg.Catalog, cfg.Audit, registry)
	coordinator.SetDefaultSkillCalls(cfg.AgentSkillCalls)
	return &Engine{
		coordinator: coordinator,
		registry:    registry,
		controller:  admission.NewController(cfg.Fuse),
		collector:   collect.New(registry),
		logger:      cfg.Logger,
		turn:        admission.NewTurnBudget(cfg.TurnAgents, cfg.TurnSkillCalls),
		conv:        admission.NewConversationRate(cfg.ConversationCalls, cfg.ConversationWindow),
		budgets:     make(map[string]admission.AgentBudget),
		events:      make(chan Event, 100),
	}
}

// Registry exposes the lifecycle registry, e.g. for resume calls from the
// orchestrating caller.
func (e *Engine) Registry() *lifecycle.Registry {
	return e.registry
}

// SetConversationID tags subsequent audit records with the conversation.
func (e *Engine) SetConversationID(id string) {
	e.coordinator.SetConversationID(id)
}

// Fuses exposes the level-1 fuse board for explicit resets.
func (e *Engine) Fuses() *admission.FuseBoard {
	return e.controller.Fuses
}

// Events returns the engine's event channel.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// DroppedEventCount returns how many events were discarded because the
// consumer fell behind.
func (e *Engine) DroppedEventCount() uint64 {
	return e.dropped.Load()
}

// emit sends an event without blocking agent goroutines. Events emitted
// after Close, or when the consumer has fallen behind, are counted as
// dropped rather than delivered.
func (e *Engine) emit(ev Event) {
	ev.Timestamp = time.Now()
	e.evMu.Lock()
	defer e.evMu.Unlock()
	if e.evClosed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.events <- ev:
	default:
		e.dropped.Add(1)
	}
}

// Dispatch admits a batch of agents, committing the turn budget on success.
func (e *Engine) Dispatch(ctx context.Context, batch []models.DispatchRequest) ([]models.Launch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	updated, launches, err := e.coordinator.Dispatch(ctx, batch, e.turn)
	if err != nil {
		return nil, err
	}
	e.turn = updated
	for _, l := range launches {
		e.budgets[l.AgentID] = admission.NewAgentBudget(l.MaxSkillCalls)
	}

	e.emit(Event{Type: EventDispatchAdmitted, Message: "batch admitted"})
	e.logger.Log("dispatch admitted %d agent(s)", len(launches))
	return launches, nil
}

// Start runs the launched agent on its own goroutine. The agent's terminal
// state follows from the AgentFunc's return: nil completes, an error fails,
// and a deadline error times out.
func (e *Engine) Start(ctx context.Context, launch models.Launch, fn AgentFunc) error {
	if err := e.registry.Start(launch.AgentID); err != nil {
		return err
	}
	e.emit(Event{Type: EventAgentStarted, AgentID: launch.AgentID})
	e.logger.Log("agent %s started: %s", launch.AgentID, launch.Mission)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		handle := &Handle{engine: e, launch: launch}
		result, err := fn(ctx, handle)
		switch {
		case err == nil:
			_ = e.registry.Complete(launch.AgentID, result)
			e.emit(Event{Type: EventAgentCompleted, AgentID: launch.AgentID})
		case errors.Is(err, context.DeadlineExceeded):
			_ = e.registry.Timeout(launch.AgentID, result)
			e.emit(Event{Type: EventAgentTimeout, AgentID: launch.AgentID, Err: err})
		default:
			_ = e.registry.Fail(launch.AgentID, err.Error())
			e.emit(Event{Type: EventAgentFailed, AgentID: launch.AgentID, Err: err})
		}
		e.logger.Log("agent %s finished", launch.AgentID)
	}()
	return nil
}

// Resume delivers an update to a paused agent.
func (e *Engine) Resume(agentID string, update models.ResumeUpdate) error {
	if err := e.registry.Resume(agentID, update); err != nil {
		return err
	}
	e.emit(Event{Type: EventAgentResumed, AgentID: agentID})
	e.logger.Log("agent %s resumed", agentID)
	return nil
}

// Collect returns the current snapshot without blocking.
func (e *Engine) Collect(req collect.Request) collect.Outcome {
	return e.collector.Collect(req)
}

// Await polls the collector in the requested mode until it reports ready or
// the clamped timeout elapses, then degrades gracefully to a non-blocking
// snapshot; the caller always gets a report. Cancelling the context
// abandons the wait the same way - in-flight agents are not touched.
func (e *Engine) Await(ctx context.Context, req collect.Request) collect.Report {
	deadline := time.Now().Add(time.Duration(collect.ClampTimeout(req.TimeoutMS)) * time.Millisecond)

	for {
		outcome := e.collector.Collect(req)
		if ready, ok := outcome.(collect.Ready); ok {
			return ready.Report
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
		}
	}

	snapshot := req
	snapshot.Mode = collect.ModeNonBlocking
	return e.collector.Collect(snapshot).(collect.Ready).Report
}

// Wait blocks until every started agent goroutine has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close waits for agents and closes the event channel. Close is idempotent,
// and engine methods called afterwards still work; their events are counted
// as dropped instead of delivered.
func (e *Engine) Close() {
	e.wg.Wait()
	e.evMu.Lock()
	defer e.evMu.Unlock()
	if !e.evClosed {
		e.evClosed = true
		close(e.events)
	}
}

// useSkill routes one skill invocation through all four admission levels
// and records the outcome on the fuse board. The engine mutex makes the
// check-and-commit of the shared budget states atomic.
func (e *Engine) useSkill(ctx context.Context, agentID, skill string, fn func(context.Context) error) error {
	e.mu.Lock()
	budget, ok := e.budgets[agentID]
	if !ok {
		budget = admission.NewAgentBudget(0)
	}
	updatedBudget, updatedTurn, updatedConv, err := e.controller.CheckAll(skill, budget, e.turn, e.conv)
	if err != nil {
		e.mu.Unlock()
		e.emit(Event{Type: EventSkillRefused, AgentID: agentID, Skill: skill, Err: err})
		e.logger.Log("agent %s refused skill %s: %v", agentID, skill, err)
		return err
	}
	e.budgets[agentID] = updatedBudget
	e.turn = updatedTurn
	e.conv = updatedConv
	e.mu.Unlock()

	_ = e.registry.AddToolCall(agentID)

	if err := fn(ctx); err != nil {
		e.controller.Fuses.RecordFailure(skill)
		return err
	}
	e.controller.Fuses.RecordSuccess(skill)
	return nil
}

// Handle is the agent-side surface of the engine, passed to each AgentFunc.
type Handle struct {
	engine *Engine
	launch models.Launch
}

// Launch returns the agent's start parameters.
func (h *Handle) Launch() models.Launch {
	return h.launch
}

// UseSkill invokes a skill body under admission control. The returned error
// is either an admission rejection (the body never ran) or the body's own
// error (already counted against the skill's fuse).
func (h *Handle) UseSkill(ctx context.Context, skill string, fn func(context.Context) error) error {
	return h.engine.useSkill(ctx, h.launch.AgentID, skill, fn)
}

// RequestHelp pauses the agent until the orchestrator resumes it with an
// update, or the context is cancelled.
func (h *Handle) RequestHelp(ctx context.Context, reason string, partialHistory []string) (models.ResumeUpdate, error) {
	h.engine.emit(Event{Type: EventAgentPaused, AgentID: h.launch.AgentID, Message: reason})
	h.engine.logger.Log("agent %s paused: %s", h.launch.AgentID, reason)
	return h.engine.registry.RequestHelp(ctx, h.launch.AgentID, reason, partialHistory)
}

// Note appends a line to the agent's transcript tail.
func (h *Handle) Note(line string) {
	_ = h.engine.registry.AppendTranscript(h.launch.AgentID, line)
}
