package admission

import (
	"time"

	"github.com/castellan-ai/castellan/internal/ratelimit"
)

// Default budget limits.
const (
	// DefaultAgentSkillCalls is the per-agent skill-call budget.
	DefaultAgentSkillCalls = 5
	// DefaultTurnAgents is the per-turn sub-agent dispatch budget.
	DefaultTurnAgents = 8
	// DefaultTurnSkillCalls is the per-turn total skill-call budget.
	DefaultTurnSkillCalls = 30
	// DefaultConversationCalls is the per-conversation rate capacity.
	DefaultConversationCalls = 50
	// DefaultConversationWindow is the per-conversation rate window.
	DefaultConversationWindow = 5 * time.Minute
)

// AgentBudget tracks one sub-agent's skill usage. It is a pure value:
// Check returns an updated copy, and a refused check leaves the receiver's
// counters untouched.
type AgentBudget struct {
	// SkillCalls is the number of calls consumed so far.
	SkillCalls int
	// MaxSkillCalls is the budget ceiling.
	MaxSkillCalls int
}

// NewAgentBudget creates an AgentBudget with the given ceiling.
// Values < 1 fall back to DefaultAgentSkillCalls.
func NewAgentBudget(max int) AgentBudget {
	if max < 1 {
		max = DefaultAgentSkillCalls
	}
	return AgentBudget{MaxSkillCalls: max}
}

// Check consumes count skill calls, returning the updated budget.
// An increment that would exceed the budget is refused with a level-2
// Rejection and the counter is left unchanged.
func (b AgentBudget) Check(count int) (AgentBudget, error) {
	if count < 1 {
		count = 1
	}
	if b.SkillCalls+count > b.MaxSkillCalls {
		return b, &Rejection{
			Level: LevelAgentBudget,
			Scope: ScopeAgent,
			Used:  b.SkillCalls,
			Max:   b.MaxSkillCalls,
		}
	}
	b.SkillCalls += count
	return b, nil
}

// TurnBudget tracks agent dispatches and skill calls within one conversation
// turn. The two counters are independent and both monotonically non-decreasing
// for the life of the turn; the caller discards the value when a new turn
// begins.
type TurnBudget struct {
	// AgentsDispatched counts sub-agents admitted this turn.
	AgentsDispatched int
	// MaxAgents is the dispatch ceiling for the turn.
	MaxAgents int
	// SkillCalls counts skill invocations across all agents this turn.
	SkillCalls int
	// MaxSkillCalls is the skill-call ceiling for the turn.
	MaxSkillCalls int
}

// NewTurnBudget creates a TurnBudget. Values < 1 fall back to the defaults.
func NewTurnBudget(maxAgents, maxSkillCalls int) TurnBudget {
	if maxAgents < 1 {
		maxAgents = DefaultTurnAgents
	}
	if maxSkillCalls < 1 {
		maxSkillCalls = DefaultTurnSkillCalls
	}
	return TurnBudget{MaxAgents: maxAgents, MaxSkillCalls: maxSkillCalls}
}

// CheckAgents consumes count dispatch slots, returning the updated budget.
// A batch of N agents requests N units at once so a burst that would exceed
// the budget is refused atomically rather than partially admitted.
func (b TurnBudget) CheckAgents(count int) (TurnBudget, error) {
	if count < 1 {
		count = 1
	}
	if b.AgentsDispatched+count > b.MaxAgents {
		return b, &Rejection{
			Level: LevelTurnBudget,
			Scope: ScopeTurnAgents,
			Used:  b.AgentsDispatched,
			Max:   b.MaxAgents,
		}
	}
	b.AgentsDispatched += count
	return b, nil
}

// CheckSkillCalls consumes count turn-wide skill calls, returning the
// updated budget. Refusals leave the counter unchanged.
func (b TurnBudget) CheckSkillCalls(count int) (TurnBudget, error) {
	if count < 1 {
		count = 1
	}
	if b.SkillCalls+count > b.MaxSkillCalls {
		return b, &Rejection{
			Level: LevelTurnBudget,
			Scope: ScopeTurnSkillCalls,
			Used:  b.SkillCalls,
			Max:   b.MaxSkillCalls,
		}
	}
	b.SkillCalls += count
	return b, nil
}

// ConversationRate bounds skill-call volume across an entire conversation
// using a sliding window. Like the budgets it is a value threaded through
// the conversation's owning context, not a shared singleton.
type ConversationRate struct {
	// Limiter is the underlying sliding-window limiter.
	Limiter ratelimit.Limiter
}

// NewConversationRate creates a ConversationRate. Non-positive arguments
// fall back to the defaults (50 calls per 5 minutes).
func NewConversationRate(maxCalls int, window time.Duration) ConversationRate {
	if maxCalls < 1 {
		maxCalls = DefaultConversationCalls
	}
	if window <= 0 {
		window = DefaultConversationWindow
	}
	return ConversationRate{Limiter: ratelimit.New(maxCalls, window)}
}

// Check admits count calls at now, returning the updated state. Refusals
// carry a level-4 Rejection and leave the window untouched.
func (c ConversationRate) Check(now time.Time, count int) (ConversationRate, error) {
	updated, err := c.Limiter.Check(now, count)
	if err != nil {
		rej := &Rejection{
			Level:  LevelConversationRate,
			Scope:  ScopeConversation,
			Max:    c.Limiter.MaxCalls,
			Window: c.Limiter.Window,
		}
		if lim, ok := err.(*ratelimit.LimitExceededError); ok {
			rej.Used = lim.CurrentCount
		}
		return c, rej
	}
	c.Limiter = updated
	return c, nil
}
