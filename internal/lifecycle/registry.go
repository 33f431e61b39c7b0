// Package lifecycle owns the sub-agent state machine and its pause/resume
// handshake. The Registry is the source of truth the dispatch coordinator
// and result collector query; other components only ever see snapshots.
//
// Legal transitions (initial pending, terminals completed/failed/timeout):
//
//	pending -> running                (execution starts)
//	running -> awaiting_orchestrator  (agent requests help)
//	awaiting_orchestrator -> running  (resume with an update)
//	running -> completed|failed|timeout
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/castellan-ai/castellan/pkg/models"
)

// DefaultTranscriptTail is the number of recent activity lines retained
// per agent.
const DefaultTranscriptTail = 20

// record is the registry-owned mutable state for one agent. All fields are
// guarded by the registry mutex.
type record struct {
	snapshot models.AgentRecord
	// resumeCh carries at most one pending resume update. The buffer is
	// size one and is drained whenever the agent leaves the awaiting state,
	// so a send under the registry lock can never block.
	resumeCh  chan models.ResumeUpdate
	startedAt time.Time
}

// Registry tracks every dispatched sub-agent in a turn. It is safe for
// concurrent use: agent goroutines block in RequestHelp while the
// orchestrator mutates records through the exported methods.
type Registry struct {
	agents map[string]*record
	// tailLimit bounds the transcript ring buffer per agent.
	tailLimit int
	mu        sync.Mutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		agents:    make(map[string]*record),
		tailLimit: DefaultTranscriptTail,
	}
}

// SetTranscriptLimit changes how many transcript lines are retained per
// agent. Values < 1 restore the default.
func (r *Registry) SetTranscriptLimit(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 1 {
		n = DefaultTranscriptTail
	}
	r.tailLimit = n
}

// Register creates a pending record for the agent. Registering an ID that
// already has a record fails with DuplicateAgentError.
func (r *Registry) Register(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[agentID]; exists {
		return &DuplicateAgentError{AgentID: agentID}
	}
	r.agents[agentID] = &record{
		snapshot: models.AgentRecord{
			AgentID:      agentID,
			Status:       models.AgentStatusPending,
			DispatchedAt: time.Now(),
		},
		resumeCh: make(chan models.ResumeUpdate, 1),
	}
	return nil
}

// Discard removes a pending agent's record, freeing its ID for re-dispatch.
// The dispatch coordinator uses it to roll back registrations from a batch
// that failed partway. Only pending agents can be discarded; anything that
// has started execution keeps its record.
func (r *Registry) Discard(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok {
		return &NotFoundError{AgentID: agentID}
	}
	if rec.snapshot.Status != models.AgentStatusPending {
		return fmt.Errorf("discard agent %q: status is %s, not pending", agentID, rec.snapshot.Status)
	}
	delete(r.agents, agentID)
	return nil
}

// Start moves the agent from pending to running.
func (r *Registry) Start(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok {
		return &NotFoundError{AgentID: agentID}
	}
	if rec.snapshot.Status != models.AgentStatusPending {
		return &TransitionError{AgentID: agentID, From: rec.snapshot.Status, To: models.AgentStatusRunning}
	}
	rec.snapshot.Status = models.AgentStatusRunning
	rec.startedAt = time.Now()
	return nil
}

// RequestHelp pauses the calling agent until the orchestrator resumes it.
// The status flips to awaiting_orchestrator with the given reason and
// partial history, and the call blocks until Resume delivers an update or
// the context is cancelled. On cancellation the agent is returned to
// running so it can take its own terminal transition; the caller receives
// the context error.
func (r *Registry) RequestHelp(ctx context.Context, agentID, reason string, partialHistory []string) (models.ResumeUpdate, error) {
	r.mu.Lock()
	rec, ok := r.agents[agentID]
	if !ok {
		r.mu.Unlock()
		return models.ResumeUpdate{}, &NotFoundError{AgentID: agentID}
	}
	if rec.snapshot.Status != models.AgentStatusRunning {
		status := rec.snapshot.Status
		r.mu.Unlock()
		return models.ResumeUpdate{}, &TransitionError{AgentID: agentID, From: status, To: models.AgentStatusAwaitingOrchestrator}
	}
	rec.snapshot.Status = models.AgentStatusAwaitingOrchestrator
	rec.snapshot.AwaitingReason = reason
	rec.snapshot.PartialHistory = append([]string(nil), partialHistory...)
	ch := rec.resumeCh
	r.mu.Unlock()

	select {
	case update := <-ch:
		// Resume already flipped the status back to running and cleared
		// the pause fields before delivering.
		return update, nil
	case <-ctx.Done():
		r.abandonWait(agentID)
		return models.ResumeUpdate{}, ctx.Err()
	}
}

// abandonWait returns an agent to running after its wait was cancelled.
// If a racing resume won first the record is already running and the
// delivered update is discarded with the wait.
func (r *Registry) abandonWait(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok {
		return
	}
	if rec.snapshot.Status == models.AgentStatusAwaitingOrchestrator {
		rec.snapshot.Status = models.AgentStatusRunning
		rec.snapshot.AwaitingReason = ""
		rec.snapshot.PartialHistory = nil
	}
	// Drain any update that raced in; the buffer must be free before the
	// agent can pause again.
	select {
	case <-rec.resumeCh:
	default:
	}
}

// Resume delivers an update to a paused agent and returns it to running.
// The awaiting precondition is checked and cleared atomically with the
// delivery, so two racing resumes cannot both succeed and a resume racing
// the agent's own departure from the paused state loses with
// NotAwaitingError. An empty update is rejected before any state is read.
func (r *Registry) Resume(agentID string, update models.ResumeUpdate) error {
	if update.Empty() {
		return ErrEmptyUpdate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok {
		return &NotFoundError{AgentID: agentID}
	}
	if rec.snapshot.Status != models.AgentStatusAwaitingOrchestrator {
		return &NotAwaitingError{AgentID: agentID, Status: rec.snapshot.Status}
	}

	rec.snapshot.Status = models.AgentStatusRunning
	rec.snapshot.AwaitingReason = ""
	rec.snapshot.PartialHistory = nil
	// The buffer is guaranteed free: it is drained whenever the agent
	// leaves the awaiting state, and the status check above means no other
	// resume has landed since the agent paused.
	rec.resumeCh <- update
	return nil
}

// Complete moves a running agent to the completed terminal state.
func (r *Registry) Complete(agentID, result string) error {
	return r.terminal(agentID, models.AgentStatusCompleted, result)
}

// Fail moves a running agent to the failed terminal state.
func (r *Registry) Fail(agentID, result string) error {
	return r.terminal(agentID, models.AgentStatusFailed, result)
}

// Timeout moves a running agent to the timeout terminal state.
func (r *Registry) Timeout(agentID, result string) error {
	return r.terminal(agentID, models.AgentStatusTimeout, result)
}

// terminal applies a terminal transition. Terminal states are final,
// and only a running agent may take one.
func (r *Registry) terminal(agentID string, to models.AgentStatus, result string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok {
		return &NotFoundError{AgentID: agentID}
	}
	if rec.snapshot.Status != models.AgentStatusRunning {
		return &TransitionError{AgentID: agentID, From: rec.snapshot.Status, To: to}
	}
	rec.snapshot.Status = to
	rec.snapshot.Result = result
	if !rec.startedAt.IsZero() {
		rec.snapshot.DurationMS = time.Since(rec.startedAt).Milliseconds()
	}
	return nil
}

// AppendTranscript records an activity line for the agent, keeping only the
// most recent tailLimit lines.
func (r *Registry) AppendTranscript(agentID, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok {
		return &NotFoundError{AgentID: agentID}
	}
	tail := append(rec.snapshot.TranscriptTail, line)
	if excess := len(tail) - r.tailLimit; excess > 0 {
		tail = tail[excess:]
	}
	rec.snapshot.TranscriptTail = tail
	return nil
}

// AddToolCall increments the agent's skill-invocation counter.
func (r *Registry) AddToolCall(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok {
		return &NotFoundError{AgentID: agentID}
	}
	rec.snapshot.ToolCallsUsed++
	return nil
}

// Snapshot returns a copy of the agent's current record. For running agents
// the duration reflects elapsed time so far; terminal transitions freeze it.
func (r *Registry) Snapshot(agentID string) (models.AgentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.agents[agentID]
	if !ok {
		return models.AgentRecord{}, &NotFoundError{AgentID: agentID}
	}
	return r.copyRecord(rec), nil
}

// SnapshotAll returns copies of every record, ordered by dispatch time.
func (r *Registry) SnapshotAll() []models.AgentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.AgentRecord, 0, len(r.agents))
	for _, rec := range r.agents {
		out = append(out, r.copyRecord(rec))
	}
	sortRecords(out)
	return out
}

// IDs returns every registered agent ID, ordered by dispatch time.
func (r *Registry) IDs() []string {
	all := r.SnapshotAll()
	ids := make([]string, len(all))
	for i, rec := range all {
		ids[i] = rec.AgentID
	}
	return ids
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

// copyRecord clones a record's snapshot. Must be called with the lock held.
func (r *Registry) copyRecord(rec *record) models.AgentRecord {
	snap := rec.snapshot
	snap.PartialHistory = append([]string(nil), rec.snapshot.PartialHistory...)
	snap.TranscriptTail = append([]string(nil), rec.snapshot.TranscriptTail...)
	if snap.Status == models.AgentStatusRunning && !rec.startedAt.IsZero() {
		snap.DurationMS = time.Since(rec.startedAt).Milliseconds()
	}
	return snap
}

// sortRecords orders records by dispatch time, then ID for stability.
func sortRecords(records []models.AgentRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].DispatchedAt.Equal(records[j].DispatchedAt) {
			return records[i].DispatchedAt.Before(records[j].DispatchedAt)
		}
		return records[i].AgentID < records[j].AgentID
	})
}
