// Package catalog provides the skill catalog the dispatch coordinator
// resolves requested skill names against.
package catalog

import (
	"sort"
	"sync"
)

// Skill describes one registered skill.
type Skill struct {
	// Name is the unique skill identifier, e.g. "email.search".
	Name string `json:"name"`
	// Description is a short human-readable summary.
	Description string `json:"description,omitempty"`
}

// Memory is an in-memory skill catalog, safe for concurrent use.
type Memory struct {
	skills map[string]Skill
	mu     sync.RWMutex
}

// NewMemory creates an empty catalog.
func NewMemory() *Memory {
	return &Memory{skills: make(map[string]Skill)}
}

// Register adds or replaces a skill.
func (m *Memory) Register(s Skill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skills[s.Name] = s
}

// Exists reports whether a skill with the given name is registered.
func (m *Memory) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.skills[name]
	return ok
}

// Names returns the registered skill names in sorted order.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.skills))
	for name := range m.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
