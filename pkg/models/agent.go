package models

import "time"

// AgentStatus represents the current state of a dispatched sub-agent.
type AgentStatus string

const (
	// AgentStatusPending indicates the agent has been admitted but not started.
	AgentStatusPending AgentStatus = "pending"
	// AgentStatusRunning indicates the agent is actively working.
	AgentStatusRunning AgentStatus = "running"
	// AgentStatusAwaitingOrchestrator indicates the agent paused itself and is
	// waiting for orchestrator-supplied input before it can continue.
	AgentStatusAwaitingOrchestrator AgentStatus = "awaiting_orchestrator"
	// AgentStatusCompleted indicates the agent finished successfully.
	AgentStatusCompleted AgentStatus = "completed"
	// AgentStatusFailed indicates the agent encountered an error.
	AgentStatusFailed AgentStatus = "failed"
	// AgentStatusTimeout indicates the agent exceeded its execution deadline.
	AgentStatusTimeout AgentStatus = "timeout"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusPending, AgentStatusRunning, AgentStatusAwaitingOrchestrator,
		AgentStatusCompleted, AgentStatusFailed, AgentStatusTimeout:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition is possible from this status.
func (s AgentStatus) Terminal() bool {
	switch s {
	case AgentStatusCompleted, AgentStatusFailed, AgentStatusTimeout:
		return true
	default:
		return false
	}
}

// Actionable returns true if the status requires orchestrator attention.
func (s AgentStatus) Actionable() bool {
	return s == AgentStatusAwaitingOrchestrator
}

// AgentRecord is a point-in-time snapshot of one dispatched sub-agent.
// The lifecycle registry owns the mutable record; everything handed to
// other components is a copy.
type AgentRecord struct {
	// AgentID is the caller-supplied identifier, unique within a turn.
	AgentID string `json:"agent_id"`
	// Status is the current lifecycle state.
	Status AgentStatus `json:"status"`
	// Result is the final text payload, set only on terminal states.
	Result string `json:"result,omitempty"`
	// AwaitingReason explains why the agent paused. Set only while the
	// status is awaiting_orchestrator.
	AwaitingReason string `json:"awaiting_reason,omitempty"`
	// PartialHistory is an ordered log of what the agent had done before
	// pausing. Set only while the status is awaiting_orchestrator.
	PartialHistory []string `json:"partial_history,omitempty"`
	// ToolCallsUsed is the number of skill invocations the agent has made.
	ToolCallsUsed int `json:"tool_calls_used"`
	// DurationMS is the elapsed execution time in milliseconds.
	DurationMS int64 `json:"duration_ms"`
	// TranscriptTail holds the most recent activity lines, oldest first.
	// Only the last K lines are retained by the registry.
	TranscriptTail []string `json:"transcript_tail,omitempty"`
	// DispatchedAt is when the agent record was created.
	DispatchedAt time.Time `json:"dispatched_at"`
}

// ResumeUpdate is the payload delivered to a paused agent on resume.
// At least one field must be populated; a paused agent needs something
// to act on.
type ResumeUpdate struct {
	// Message is free-form guidance for the agent.
	Message string `json:"message,omitempty"`
	// Skills grants additional skill names to the agent.
	Skills []string `json:"skills,omitempty"`
	// ContextFiles references additional context files for the agent.
	ContextFiles []string `json:"context_files,omitempty"`
}

// Empty returns true if the update carries nothing for the agent to act on.
func (u ResumeUpdate) Empty() bool {
	return u.Message == "" && len(u.Skills) == 0 && len(u.ContextFiles) == 0
}
