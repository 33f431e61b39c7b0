package models

// DispatchRequest describes one sub-agent the caller wants started.
type DispatchRequest struct {
	// AgentID is the caller-supplied identifier, unique within the turn.
	AgentID string `json:"agent_id"`
	// Mission is the task description handed to the agent.
	Mission string `json:"mission"`
	// Skills lists the skill names the agent may invoke.
	Skills []string `json:"skills"`
	// DependsOn lists agent IDs this agent must wait on before starting.
	// The results of the dependencies are concatenated into this agent's
	// context by the execution layer.
	DependsOn []string `json:"depends_on,omitempty"`
	// MaxSkillCalls overrides the per-agent skill-call budget when > 0.
	MaxSkillCalls int `json:"max_skill_calls,omitempty"`
	// Model overrides the default model for this agent when non-empty.
	Model string `json:"model,omitempty"`
}

// Launch carries the start parameters for one admitted agent. The dispatch
// coordinator produces these; the execution layer consumes them.
type Launch struct {
	// AgentID identifies the agent within the turn.
	AgentID string `json:"agent_id"`
	// Mission is the task description.
	Mission string `json:"mission"`
	// Skills lists the granted skill names.
	Skills []string `json:"skills"`
	// DependsOn lists agent IDs whose results must be injected first.
	DependsOn []string `json:"depends_on,omitempty"`
	// MaxSkillCalls is the effective per-agent skill-call budget.
	MaxSkillCalls int `json:"max_skill_calls"`
	// Model is the effective model name, empty for the default.
	Model string `json:"model,omitempty"`
	// AuditID is the identifier of the audit record written at admission.
	AuditID string `json:"audit_id"`
}
