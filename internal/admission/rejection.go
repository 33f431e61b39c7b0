// Package admission implements the four-level gate that every sub-agent
// skill invocation passes through: per-skill fuse, per-agent budget,
// per-turn budget, and per-conversation rate limit.
package admission

import (
	"fmt"
	"time"
)

// Admission levels, cheapest and most specific first.
const (
	// LevelSkillFuse gates on the skill's own failure history.
	LevelSkillFuse = 1
	// LevelAgentBudget gates on one agent's skill-call budget.
	LevelAgentBudget = 2
	// LevelTurnBudget gates on turn-wide agent and skill-call budgets.
	LevelTurnBudget = 3
	// LevelConversationRate gates on conversation-wide call volume.
	LevelConversationRate = 4
)

// Rejection scopes reported to callers.
const (
	ScopeSkill          = "skill"
	ScopeAgent          = "agent"
	ScopeTurnAgents     = "turn_agents"
	ScopeTurnSkillCalls = "turn_skill_calls"
	ScopeConversation   = "conversation"
)

// Rejection is the structured error returned when an admission level refuses
// a request. Rejections are expected and frequent; they carry enough detail
// for the caller to build a precise user-facing message and are never fatal.
type Rejection struct {
	// Level is the admission level that refused (1-4).
	Level int
	// Scope names the budget or gate that refused.
	Scope string
	// Skill is the skill name, set for level-1 rejections.
	Skill string
	// Used is the amount already consumed in the refusing scope.
	Used int
	// Max is the configured limit of the refusing scope.
	Max int
	// Window is the rate window, set for level-4 rejections.
	Window time.Duration
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	switch r.Level {
	case LevelSkillFuse:
		return fmt.Sprintf("admission refused: circuit open for skill %q (level %d)", r.Skill, r.Level)
	case LevelConversationRate:
		return fmt.Sprintf("admission refused: %s limit exceeded, %d/%d in %s window (level %d)",
			r.Scope, r.Used, r.Max, r.Window, r.Level)
	default:
		return fmt.Sprintf("admission refused: %s limit exceeded, %d/%d (level %d)",
			r.Scope, r.Used, r.Max, r.Level)
	}
}
