package dispatch

import (
	"fmt"
	"strings"
)

// MissingFieldsError reports every absent or empty required field of one
// dispatch request in a single error, not just the first.
type MissingFieldsError struct {
	// AgentID is the offending request's agent ID, possibly empty.
	AgentID string
	// Fields names every missing field.
	Fields []string
}

// Error implements the error interface.
func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("dispatch request %q: missing fields: %s", e.AgentID, strings.Join(e.Fields, ", "))
}

// UnknownSkillsError reports every requested skill name that did not resolve
// in the catalog.
type UnknownSkillsError struct {
	// AgentID is the offending request's agent ID.
	AgentID string
	// Skills names every unresolved skill.
	Skills []string
}

// Error implements the error interface.
func (e *UnknownSkillsError) Error() string {
	return fmt.Sprintf("dispatch request %q: unknown skills: %s", e.AgentID, strings.Join(e.Skills, ", "))
}

// DuplicateAgentError reports an agent ID that is already dispatched in the
// turn, or appears twice within one batch. Duplicates are rejected rather
// than silently overwritten.
type DuplicateAgentError struct {
	// AgentID is the duplicated identifier.
	AgentID string
}

// Error implements the error interface.
func (e *DuplicateAgentError) Error() string {
	return fmt.Sprintf("dispatch request %q: agent id already dispatched this turn", e.AgentID)
}
