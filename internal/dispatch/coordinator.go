// Package dispatch validates sub-agent dispatch requests, consults the
// admission controller, records audit entries, and hands the start
// parameters back to the execution layer. It never starts agents itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/castellan-ai/castellan/internal/admission"
	"github.com/castellan-ai/castellan/internal/audit"
	"github.com/castellan-ai/castellan/internal/lifecycle"
	"github.com/castellan-ai/castellan/pkg/models"
)

// SkillCatalog resolves requested skill names. Implemented by the catalog
// package in-process; external embeddings may bring their own.
type SkillCatalog interface {
	// Exists reports whether the skill name is known.
	Exists(name string) bool
}

// Coordinator validates and admits dispatch requests for one conversation.
type Coordinator struct {
	catalog  SkillCatalog
	audit    audit.Store
	registry *lifecycle.Registry
	// conversationID tags audit records, may be empty.
	conversationID string
	// defaultSkillCalls applies to requests without a budget override.
	defaultSkillCalls int
}

// New creates a Coordinator. All three collaborators are required.
func New(catalog SkillCatalog, store audit.Store, registry *lifecycle.Registry) *Coordinator {
	return &Coordinator{
		catalog:           catalog,
		audit:             store,
		registry:          registry,
		defaultSkillCalls: admission.DefaultAgentSkillCalls,
	}
}

// SetConversationID tags subsequent audit records with the conversation.
func (c *Coordinator) SetConversationID(id string) {
	c.conversationID = id
}

// SetDefaultSkillCalls changes the per-agent budget applied to requests
// without their own override. Values < 1 keep the built-in default.
func (c *Coordinator) SetDefaultSkillCalls(n int) {
	if n >= 1 {
		c.defaultSkillCalls = n
	}
}

// Dispatch validates the batch, consumes len(batch) units of the turn's
// agent budget atomically, writes one audit record per agent, registers a
// pending lifecycle record per agent, and returns the launch parameters for
// the execution layer.
//
// Validation fails fast with zero side effects: no audit record is written,
// no budget consumed, and no agent registered unless the whole batch passes.
// Each failure is a distinct reported reason; missing fields and unknown
// skills are aggregated per request rather than reported one at a time.
// On success the updated turn budget is returned; on any error the
// returned budget equals the input.
func (c *Coordinator) Dispatch(ctx context.Context, batch []models.DispatchRequest, turn admission.TurnBudget) (admission.TurnBudget, []models.Launch, error) {
	if len(batch) == 0 {
		return turn, nil, errors.New("dispatch: empty batch")
	}

	// Step 1: required fields, every offending field reported together.
	for _, req := range batch {
		var missing []string
		if req.AgentID == "" {
			missing = append(missing, "agent_id")
		}
		if req.Mission == "" {
			missing = append(missing, "mission")
		}
		if len(req.Skills) == 0 {
			missing = append(missing, "skills")
		}
		if len(missing) > 0 {
			return turn, nil, &MissingFieldsError{AgentID: req.AgentID, Fields: missing}
		}
	}

	// Step 2: every requested skill must resolve in the catalog.
	for _, req := range batch {
		var unknown []string
		for _, skill := range req.Skills {
			if !c.catalog.Exists(skill) {
				unknown = append(unknown, skill)
			}
		}
		if len(unknown) > 0 {
			return turn, nil, &UnknownSkillsError{AgentID: req.AgentID, Skills: unknown}
		}
	}

	// Duplicate agent IDs are rejected, both within the batch and against
	// agents already dispatched this turn. Silent overwrite would orphan a
	// possibly-paused agent's resume channel.
	seen := make(map[string]bool, len(batch))
	for _, req := range batch {
		if seen[req.AgentID] {
			return turn, nil, &DuplicateAgentError{AgentID: req.AgentID}
		}
		seen[req.AgentID] = true
		if _, err := c.registry.Snapshot(req.AgentID); err == nil {
			return turn, nil, &DuplicateAgentError{AgentID: req.AgentID}
		}
	}

	// Step 3: the batch requests N units at once so a burst that would
	// exceed the turn budget is rejected whole, never partially admitted.
	updatedTurn, err := turn.CheckAgents(len(batch))
	if err != nil {
		return turn, nil, err
	}

	// Step 4: audit, then register. A collaborator failure anywhere in the
	// batch rolls back everything this call did - records written so far
	// are discarded and registrations undone - so the caller sees no side
	// effects and may retry the identical batch. The input budget is
	// returned so the turn state carries no increment either.
	launches := make([]models.Launch, 0, len(batch))
	for _, req := range batch {
		maxCalls := req.MaxSkillCalls
		if maxCalls < 1 {
			maxCalls = c.defaultSkillCalls
		}

		entry, err := c.audit.Record(ctx, audit.Entry{
			ConversationID: c.conversationID,
			AgentID:        req.AgentID,
			Mission:        req.Mission,
			Skills:         req.Skills,
			DependsOn:      req.DependsOn,
			Model:          req.Model,
			MaxSkillCalls:  maxCalls,
		})
		if err != nil {
			c.rollback(ctx, launches, false)
			return turn, nil, fmt.Errorf("audit record for agent %q: %w", req.AgentID, err)
		}

		launches = append(launches, models.Launch{
			AgentID:       req.AgentID,
			Mission:       req.Mission,
			Skills:        req.Skills,
			DependsOn:     req.DependsOn,
			MaxSkillCalls: maxCalls,
			Model:         req.Model,
			AuditID:       entry.ID,
		})
	}

	for i, launch := range launches {
		if err := c.registry.Register(launch.AgentID); err != nil {
			c.rollback(ctx, launches[:i], true)
			c.rollback(ctx, launches[i:], false)
			return turn, nil, fmt.Errorf("register agent %q: %w", launch.AgentID, err)
		}
	}

	log.Printf("[dispatch] admitted %d agent(s), %d/%d dispatch slots used this turn",
		len(launches), updatedTurn.AgentsDispatched, updatedTurn.MaxAgents)

	return updatedTurn, launches, nil
}

// rollback compensates the side effects of a partially admitted batch:
// audit records are discarded and, when registered is set, the pending
// lifecycle records removed. Compensation is best effort; a store that
// fails both Record and Discard can strand a record, which is logged.
func (c *Coordinator) rollback(ctx context.Context, launches []models.Launch, registered bool) {
	for _, launch := range launches {
		if registered {
			if err := c.registry.Discard(launch.AgentID); err != nil {
				log.Printf("[dispatch] rollback: discard agent %q: %v", launch.AgentID, err)
			}
		}
		if err := c.audit.Discard(ctx, launch.AuditID); err != nil {
			log.Printf("[dispatch] rollback: discard audit record %s: %v", launch.AuditID, err)
		}
	}
}
