package lifecycle

import (
	"errors"
	"fmt"

	"github.com/castellan-ai/castellan/pkg/models"
)

// ErrEmptyUpdate is returned when a resume carries nothing for the paused
// agent to act on. It is rejected before any state is touched.
var ErrEmptyUpdate = errors.New("resume update is empty: provide a message, skills, or context files")

// NotFoundError indicates the agent ID has no record in the registry.
type NotFoundError struct {
	// AgentID is the unknown identifier.
	AgentID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no agent found with id %q", e.AgentID)
}

// NotAwaitingError indicates a resume was attempted on an agent that is not
// currently awaiting the orchestrator.
type NotAwaitingError struct {
	// AgentID is the agent the resume targeted.
	AgentID string
	// Status is the agent's actual status at the time of the resume.
	Status models.AgentStatus
}

// Error implements the error interface.
func (e *NotAwaitingError) Error() string {
	return fmt.Sprintf("agent %q is %s, not awaiting_orchestrator", e.AgentID, e.Status)
}

// DuplicateAgentError indicates a register was attempted with an agent ID
// that already has a record in the registry.
type DuplicateAgentError struct {
	// AgentID is the duplicated identifier.
	AgentID string
}

// Error implements the error interface.
func (e *DuplicateAgentError) Error() string {
	return fmt.Sprintf("agent %q is already registered", e.AgentID)
}

// TransitionError indicates an attempt to move an agent through an illegal
// state transition.
type TransitionError struct {
	// AgentID is the agent the transition targeted.
	AgentID string
	// From is the agent's status at the time of the attempt.
	From models.AgentStatus
	// To is the requested status.
	To models.AgentStatus
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("agent %q: illegal transition %s -> %s", e.AgentID, e.From, e.To)
}
