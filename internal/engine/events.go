package engine

import "time"

// EventType represents the type of engine event.
type EventType string

const (
	// EventDispatchAdmitted indicates a dispatch batch passed admission.
	EventDispatchAdmitted EventType = "dispatch_admitted"
	// EventAgentStarted indicates an agent began executing.
	EventAgentStarted EventType = "agent_started"
	// EventAgentPaused indicates an agent is awaiting the orchestrator.
	EventAgentPaused EventType = "agent_paused"
	// EventAgentResumed indicates a paused agent received an update.
	EventAgentResumed EventType = "agent_resumed"
	// EventAgentCompleted indicates an agent finished successfully.
	EventAgentCompleted EventType = "agent_completed"
	// EventAgentFailed indicates an agent failed.
	EventAgentFailed EventType = "agent_failed"
	// EventAgentTimeout indicates an agent exceeded its deadline.
	EventAgentTimeout EventType = "agent_timeout"
	// EventSkillRefused indicates admission refused a skill invocation.
	EventSkillRefused EventType = "skill_refused"
)

// Event is emitted by the engine as agents progress. Consumers that fall
// behind lose events; the engine counts drops rather than blocking.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// AgentID is the related agent, if applicable.
	AgentID string
	// Skill is the related skill name, if applicable.
	Skill string
	// Message provides additional context.
	Message string
	// Err carries error details for refusal and failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
