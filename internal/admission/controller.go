package admission

import "time"

// Controller composes the four admission levels into a single check.
// The fuse board is the only stateful member; the budget and rate states are
// caller-owned values passed through each check.
type Controller struct {
	// Fuses is the level-1 per-skill fuse board.
	Fuses *FuseBoard
	// now is the time source, swappable in tests.
	now func() time.Time
}

// NewController creates a Controller with the given fuse tunables.
func NewController(fuseCfg FuseConfig) *Controller {
	return &Controller{
		Fuses: NewFuseBoard(fuseCfg),
		now:   time.Now,
	}
}

// CheckAll evaluates the four levels strictly in order 1 -> 2 -> 3 -> 4 and
// short-circuits on the first refusal, so a rejection never leaves partial
// side effects: later levels are not touched and the returned states equal
// the inputs. The ordering is deliberate - the cheapest, most specific gate
// (is this skill already misbehaving) runs first and the broadest one
// (conversation-wide volume) runs last, so a conversation-level refusal
// never wastes an agent or turn budget increment.
//
// On success all three updated counter states are returned; the fuse level
// has no state to return since breakers are registered on the board.
func (c *Controller) CheckAll(skill string, agent AgentBudget, turn TurnBudget, conv ConversationRate) (AgentBudget, TurnBudget, ConversationRate, error) {
	// Level 1: per-skill fuse.
	if err := c.Fuses.Check(skill); err != nil {
		return agent, turn, conv, err
	}

	// Level 2: per-agent budget.
	updatedAgent, err := agent.Check(1)
	if err != nil {
		return agent, turn, conv, err
	}

	// Level 3: per-turn skill-call budget. Dispatch-count gating uses
	// CheckAgents separately at dispatch time.
	updatedTurn, err := turn.CheckSkillCalls(1)
	if err != nil {
		return agent, turn, conv, err
	}

	// Level 4: per-conversation rate.
	updatedConv, err := conv.Check(c.now(), 1)
	if err != nil {
		return agent, turn, conv, err
	}

	return updatedAgent, updatedTurn, updatedConv, nil
}
