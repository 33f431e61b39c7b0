package admission

import (
	"errors"
	"testing"
	"time"
)

func TestCheckAll_SuccessUpdatesAllStates(t *testing.T) {
	ctrl := NewController(FuseConfig{})
	now := time.Now()

	agent := NewAgentBudget(5)
	turn := NewTurnBudget(8, 30)
	conv := NewConversationRate(50, 5*time.Minute)

	updatedAgent, updatedTurn, updatedConv, err := ctrl.CheckAll("email.send", agent, turn, conv)
	if err != nil {
		t.Fatalf("expected admission: %v", err)
	}

	if updatedAgent.SkillCalls != 1 {
		t.Errorf("expected agent counter 1, got %d", updatedAgent.SkillCalls)
	}
	if updatedTurn.SkillCalls != 1 {
		t.Errorf("expected turn skill counter 1, got %d", updatedTurn.SkillCalls)
	}
	if got := updatedConv.Limiter.CurrentCount(now); got != 1 {
		t.Errorf("expected conversation count 1, got %d", got)
	}
}

func TestCheckAll_ShortCircuitAtLevel2(t *testing.T) {
	ctrl := NewController(FuseConfig{})
	now := time.Now()

	agent := NewAgentBudget(1)
	agent.SkillCalls = 1 // exhausted
	turn := NewTurnBudget(8, 30)
	conv := NewConversationRate(50, 5*time.Minute)

	updatedAgent, updatedTurn, updatedConv, err := ctrl.CheckAll("email.send", agent, turn, conv)

	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected *Rejection, got %v", err)
	}
	if rej.Level != LevelAgentBudget {
		t.Fatalf("expected level-2 rejection, got level %d", rej.Level)
	}

	// A level-2 refusal must never increment the level-3 or level-4 counters.
	if updatedAgent.SkillCalls != 1 {
		t.Errorf("agent state mutated on rejection: %+v", updatedAgent)
	}
	if updatedTurn.SkillCalls != 0 {
		t.Errorf("turn state mutated on rejection: %+v", updatedTurn)
	}
	if got := updatedConv.Limiter.CurrentCount(now); got != 0 {
		t.Errorf("conversation state mutated on rejection: count %d", got)
	}
}

func TestCheckAll_ShortCircuitAtLevel1(t *testing.T) {
	ctrl := NewController(FuseConfig{Threshold: 1})
	now := time.Now()

	ctrl.Fuses.RecordFailure("drive.search")

	agent := NewAgentBudget(5)
	turn := NewTurnBudget(8, 30)
	conv := NewConversationRate(50, 5*time.Minute)

	updatedAgent, updatedTurn, updatedConv, err := ctrl.CheckAll("drive.search", agent, turn, conv)

	var rej *Rejection
	if !errors.As(err, &rej) || rej.Level != LevelSkillFuse {
		t.Fatalf("expected level-1 rejection, got %v", err)
	}
	if updatedAgent.SkillCalls != 0 || updatedTurn.SkillCalls != 0 || updatedConv.Limiter.CurrentCount(now) != 0 {
		t.Error("open fuse must not consume any budget")
	}

	// A different skill is unaffected.
	if _, _, _, err := ctrl.CheckAll("email.send", agent, turn, conv); err != nil {
		t.Errorf("unrelated skill refused: %v", err)
	}
}

func TestCheckAll_ShortCircuitAtLevel3(t *testing.T) {
	ctrl := NewController(FuseConfig{})
	now := time.Now()

	agent := NewAgentBudget(5)
	turn := NewTurnBudget(8, 1)
	turn.SkillCalls = 1 // exhausted
	conv := NewConversationRate(50, 5*time.Minute)

	updatedAgent, _, updatedConv, err := ctrl.CheckAll("email.send", agent, turn, conv)

	var rej *Rejection
	if !errors.As(err, &rej) || rej.Level != LevelTurnBudget || rej.Scope != ScopeTurnSkillCalls {
		t.Fatalf("expected level-3 turn_skill_calls rejection, got %v", err)
	}
	// Returned states equal the inputs on rejection, including the already
	// evaluated level 2.
	if updatedAgent.SkillCalls != 0 {
		t.Errorf("level-2 increment leaked through a level-3 rejection: %+v", updatedAgent)
	}
	if got := updatedConv.Limiter.CurrentCount(now); got != 0 {
		t.Errorf("level-4 state mutated on level-3 rejection: count %d", got)
	}
}

func TestCheckAll_Level4Rejection(t *testing.T) {
	ctrl := NewController(FuseConfig{})
	now := time.Now()

	agent := NewAgentBudget(5)
	turn := NewTurnBudget(8, 30)
	conv := NewConversationRate(1, time.Minute)
	conv, err := conv.Check(now, 1)
	if err != nil {
		t.Fatalf("setup check failed: %v", err)
	}

	updatedAgent, updatedTurn, _, err := ctrl.CheckAll("email.send", agent, turn, conv)
	var rej *Rejection
	if !errors.As(err, &rej) || rej.Level != LevelConversationRate {
		t.Fatalf("expected level-4 rejection, got %v", err)
	}
	if updatedAgent.SkillCalls != 0 || updatedTurn.SkillCalls != 0 {
		t.Error("earlier-level increments leaked through a level-4 rejection")
	}
}
