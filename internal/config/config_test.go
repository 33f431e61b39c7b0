package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/castellan-ai/castellan/internal/admission"
)

func TestLoadFrom_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castellan.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Limits.AgentSkillCalls != admission.DefaultAgentSkillCalls {
		t.Errorf("expected default agent budget, got %d", cfg.Limits.AgentSkillCalls)
	}
	if cfg.Limits.TurnAgents != admission.DefaultTurnAgents {
		t.Errorf("expected default turn agents, got %d", cfg.Limits.TurnAgents)
	}
	if cfg.Limits.ConversationWindow != admission.DefaultConversationWindow {
		t.Errorf("expected default window, got %s", cfg.Limits.ConversationWindow)
	}
	if cfg.Fuse.Threshold != admission.DefaultFuseThreshold {
		t.Errorf("expected default fuse threshold, got %d", cfg.Fuse.Threshold)
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castellan.yaml")
	content := `
limits:
  agent_skill_calls: 10
  turn_agents: 2
  conversation_window: 30s
fuse:
  threshold: 7
  cooldown: 90s
logging:
  debug_log: /tmp/castellan-debug.log
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Limits.AgentSkillCalls != 10 || cfg.Limits.TurnAgents != 2 {
		t.Errorf("overrides not applied: %+v", cfg.Limits)
	}
	if cfg.Limits.ConversationWindow != 30*time.Second {
		t.Errorf("expected 30s window, got %s", cfg.Limits.ConversationWindow)
	}
	if cfg.Fuse.Threshold != 7 || cfg.Fuse.Cooldown != 90*time.Second {
		t.Errorf("fuse overrides not applied: %+v", cfg.Fuse)
	}
	// Unset fields keep defaults.
	if cfg.Limits.TurnSkillCalls != admission.DefaultTurnSkillCalls {
		t.Errorf("expected default turn skill calls, got %d", cfg.Limits.TurnSkillCalls)
	}

	fuse := cfg.AdmissionFuse()
	if fuse.Threshold != 7 || fuse.Cooldown != 90*time.Second {
		t.Errorf("fuse conversion wrong: %+v", fuse)
	}
}

func TestDumpYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "castellan.yaml")
	if err := os.WriteFile(path, []byte("limits:\n  turn_agents: 3\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	out, err := cfg.DumpYAML()
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out, "turn_agents: 3") {
		t.Errorf("dump missing override:\n%s", out)
	}
}
