// Package audit persists a record of every successful sub-agent dispatch.
// The store is a collaborator of the dispatch coordinator: exactly one
// record is written per admitted agent, none on validation failure.
package audit

import (
	"context"
	"time"
)

// Entry is one dispatch audit record.
type Entry struct {
	// ID is the store-assigned record identifier.
	ID string `json:"id"`
	// ConversationID scopes the dispatch to a conversation.
	ConversationID string `json:"conversation_id,omitempty"`
	// AgentID is the dispatched agent's identifier within the turn.
	AgentID string `json:"agent_id"`
	// Mission is the task description handed to the agent.
	Mission string `json:"mission"`
	// Skills lists the granted skill names.
	Skills []string `json:"skills"`
	// DependsOn lists the agent IDs this agent waits on.
	DependsOn []string `json:"depends_on,omitempty"`
	// Model is the model override, empty for the default.
	Model string `json:"model,omitempty"`
	// MaxSkillCalls is the effective per-agent budget.
	MaxSkillCalls int `json:"max_skill_calls"`
	// CreatedAt is when the record was written.
	CreatedAt time.Time `json:"created_at"`
}

// Store records dispatch attempts that passed admission.
type Store interface {
	// Record persists the entry, assigning ID and CreatedAt, and returns
	// the stored entry.
	Record(ctx context.Context, e Entry) (Entry, error)
	// Discard removes a previously recorded entry by ID. The dispatch
	// coordinator uses it to compensate records written for a batch that
	// failed partway, keeping the trail at one record per dispatch that
	// actually happened. Discarding an unknown ID is a no-op.
	Discard(ctx context.Context, id string) error
	// List returns the most recent entries, newest first, up to limit.
	List(ctx context.Context, limit int) ([]Entry, error)
}
