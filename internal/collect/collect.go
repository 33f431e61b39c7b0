// Package collect formats agent state for the orchestrating caller and
// implements the non-blocking / wait-any / wait-all polling decision.
// The collector never blocks: wait modes return a NotReady value carrying a
// clamped timeout for the caller's own wait loop, keeping the suspension
// point outside the library.
package collect

import (
	"fmt"

	"github.com/castellan-ai/castellan/internal/lifecycle"
	"github.com/castellan-ai/castellan/pkg/models"
)

// Mode selects the polling semantics for a collect call.
type Mode string

const (
	// ModeNonBlocking returns the current snapshot immediately.
	ModeNonBlocking Mode = "non_blocking"
	// ModeWaitAny is ready once at least one requested agent is terminal.
	ModeWaitAny Mode = "wait_any"
	// ModeWaitAll is ready only when every requested agent is terminal.
	ModeWaitAll Mode = "wait_all"
)

// Timeout clamping bounds, in milliseconds. Caller-supplied values are
// always forced into [MinWaitMS, MaxWaitMS] to prevent unbounded blocking
// and negative waits.
const (
	MinWaitMS     = 0
	MaxWaitMS     = 60000
	DefaultWaitMS = 5000
	// DefaultTailLines is how many transcript lines are included when the
	// caller requests the tail without a line count.
	DefaultTailLines = 10
)

// Request describes one collect call.
type Request struct {
	// AgentIDs selects the agents to report on. Empty means every agent
	// currently dispatched in the turn.
	AgentIDs []string
	// Mode selects the polling semantics. Empty means non_blocking.
	Mode Mode
	// TimeoutMS is the caller's requested wait budget. Nil means the
	// default; any value is clamped into [MinWaitMS, MaxWaitMS].
	TimeoutMS *int
	// IncludeTail includes recent transcript lines per agent.
	IncludeTail bool
	// TailLines bounds the included tail. Values < 1 use DefaultTailLines.
	TailLines int
}

// Entry is the formatted state of one requested agent.
type Entry struct {
	// AgentID is the requested identifier.
	AgentID string `json:"agent_id"`
	// Found is false when no agent with this ID exists; the entry then
	// carries only the Note and the whole call still succeeds.
	Found bool `json:"found"`
	// Note is a human-readable remark, set on not-found entries.
	Note string `json:"note,omitempty"`
	// Status is the agent's lifecycle state.
	Status models.AgentStatus `json:"status,omitempty"`
	// IsTerminal reports whether the agent reached a final state.
	IsTerminal bool `json:"is_terminal"`
	// IsActionable reports whether the agent needs orchestrator attention.
	IsActionable bool `json:"is_actionable"`
	// Result is the final payload for terminal agents.
	Result string `json:"result,omitempty"`
	// ToolCallsUsed is the agent's skill-invocation count.
	ToolCallsUsed int `json:"tool_calls_used"`
	// DurationMS is the agent's execution time so far.
	DurationMS int64 `json:"duration_ms"`
	// AwaitingReason is set while the agent awaits the orchestrator.
	AwaitingReason string `json:"awaiting_reason,omitempty"`
	// PartialHistory is set while the agent awaits the orchestrator.
	PartialHistory []string `json:"partial_history,omitempty"`
	// TranscriptTail holds recent activity lines when requested.
	TranscriptTail []string `json:"transcript_tail,omitempty"`
}

// Report is the formatted snapshot for a set of agents plus aggregate
// counts. Done is true iff every entry is terminal; the Summary lines are
// derived from the same counts and cannot diverge from them.
type Report struct {
	// Entries holds one entry per requested agent, in request order.
	Entries []Entry `json:"entries"`
	// Total is the number of entries.
	Total int `json:"total"`
	// Completed counts agents in the completed state.
	Completed int `json:"completed"`
	// Failed counts agents in the failed or timeout states.
	Failed int `json:"failed"`
	// Awaiting counts agents awaiting the orchestrator.
	Awaiting int `json:"awaiting"`
	// Done is true iff every entry is terminal.
	Done bool `json:"done"`
}

// Summary renders human-readable lines from the report's counts and entries.
func (r Report) Summary() []string {
	terminal := r.Completed + r.Failed
	lines := []string{
		fmt.Sprintf("%d/%d agents terminal (%d completed, %d failed, %d awaiting), done=%t",
			terminal, r.Total, r.Completed, r.Failed, r.Awaiting, r.Done),
	}
	for _, e := range r.Entries {
		if !e.Found {
			lines = append(lines, fmt.Sprintf("  %s: %s", e.AgentID, e.Note))
			continue
		}
		line := fmt.Sprintf("  %s: %s (%d tool calls, %dms)", e.AgentID, e.Status, e.ToolCallsUsed, e.DurationMS)
		if e.AwaitingReason != "" {
			line += fmt.Sprintf(" - awaiting: %s", e.AwaitingReason)
		}
		lines = append(lines, line)
	}
	return lines
}

// Outcome is the result of a collect call: either Ready with a report or
// NotReady with the wait parameters for the caller's poll loop. The sum
// shape is deliberate - the blocking loop belongs to the caller, not here.
type Outcome interface {
	outcome()
}

// Ready carries the formatted report.
type Ready struct {
	// Report is the formatted snapshot.
	Report Report
}

func (Ready) outcome() {}

// NotReady reports that the requested wait condition is not yet met.
type NotReady struct {
	// TimeoutMS is the clamped wait budget for the caller's loop.
	TimeoutMS int
	// Pending lists the requested agents that are not yet terminal.
	Pending []string
}

func (NotReady) outcome() {}

// ClampTimeout forces a caller-supplied timeout into [MinWaitMS, MaxWaitMS].
// A nil timeout means the caller did not supply one and yields the default.
func ClampTimeout(ms *int) int {
	if ms == nil {
		return DefaultWaitMS
	}
	v := *ms
	if v < MinWaitMS {
		return MinWaitMS
	}
	if v > MaxWaitMS {
		return MaxWaitMS
	}
	return v
}

// Collector reads agent snapshots from the lifecycle registry.
type Collector struct {
	registry *lifecycle.Registry
}

// New creates a Collector over the given registry.
func New(registry *lifecycle.Registry) *Collector {
	return &Collector{registry: registry}
}

// Collect evaluates the request against the current registry state.
// Unknown agent IDs degrade to inline not-found entries rather than failing
// the call; partial visibility is the norm. In the wait modes a not-yet-met
// condition yields NotReady with a clamped timeout; agents that do not exist
// are never waited on.
func (c *Collector) Collect(req Request) Outcome {
	ids := req.AgentIDs
	if len(ids) == 0 {
		ids = c.registry.IDs()
	}

	entries := make([]Entry, 0, len(ids))
	pending := make([]string, 0)
	terminalCount := 0
	foundCount := 0

	for _, id := range ids {
		snap, err := c.registry.Snapshot(id)
		if err != nil {
			entries = append(entries, Entry{AgentID: id, Note: "no agent found"})
			continue
		}
		foundCount++
		if snap.Status.Terminal() {
			terminalCount++
		} else {
			pending = append(pending, id)
		}
		entries = append(entries, c.format(snap, req))
	}

	switch req.Mode {
	case ModeWaitAny:
		if foundCount > 0 && terminalCount == 0 {
			return NotReady{TimeoutMS: ClampTimeout(req.TimeoutMS), Pending: pending}
		}
	case ModeWaitAll:
		if terminalCount < foundCount {
			return NotReady{TimeoutMS: ClampTimeout(req.TimeoutMS), Pending: pending}
		}
	}

	return Ready{Report: buildReport(entries)}
}

// format renders one snapshot as an entry, honoring the tail options.
func (c *Collector) format(snap models.AgentRecord, req Request) Entry {
	entry := Entry{
		AgentID:       snap.AgentID,
		Found:         true,
		Status:        snap.Status,
		IsTerminal:    snap.Status.Terminal(),
		IsActionable:  snap.Status.Actionable(),
		Result:        snap.Result,
		ToolCallsUsed: snap.ToolCallsUsed,
		DurationMS:    snap.DurationMS,
	}
	if snap.Status == models.AgentStatusAwaitingOrchestrator {
		entry.AwaitingReason = snap.AwaitingReason
		entry.PartialHistory = snap.PartialHistory
	}
	if req.IncludeTail {
		lines := req.TailLines
		if lines < 1 {
			lines = DefaultTailLines
		}
		tail := snap.TranscriptTail
		if len(tail) > lines {
			tail = tail[len(tail)-lines:]
		}
		entry.TranscriptTail = tail
	}
	return entry
}

// buildReport computes the aggregate counts from the entries.
func buildReport(entries []Entry) Report {
	report := Report{Entries: entries, Total: len(entries), Done: true}
	for _, e := range entries {
		switch e.Status {
		case models.AgentStatusCompleted:
			report.Completed++
		case models.AgentStatusFailed, models.AgentStatusTimeout:
			report.Failed++
		case models.AgentStatusAwaitingOrchestrator:
			report.Awaiting++
		}
		if !e.IsTerminal {
			report.Done = false
		}
	}
	return report
}
