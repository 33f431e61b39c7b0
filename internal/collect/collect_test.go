package collect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/castellan-ai/castellan/internal/lifecycle"
	"github.com/castellan-ai/castellan/pkg/models"
)

// newRegistry builds a registry with agents in the given states.
func newRegistry(t *testing.T, states map[string]models.AgentStatus) *lifecycle.Registry {
	t.Helper()
	r := lifecycle.NewRegistry()
	for id, status := range states {
		if err := r.Register(id); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		switch status {
		case models.AgentStatusPending:
		case models.AgentStatusRunning:
			_ = r.Start(id)
		case models.AgentStatusCompleted:
			_ = r.Start(id)
			_ = r.Complete(id, "result of "+id)
		case models.AgentStatusFailed:
			_ = r.Start(id)
			_ = r.Fail(id, "error in "+id)
		case models.AgentStatusTimeout:
			_ = r.Start(id)
			_ = r.Timeout(id, "")
		default:
			t.Fatalf("unsupported setup status %s", status)
		}
	}
	return r
}

// pauseAgent drives an agent into awaiting_orchestrator on a background
// goroutine and waits for the transition to land.
func pauseAgent(t *testing.T, r *lifecycle.Registry, id, reason string, history []string) {
	t.Helper()
	go func() {
		_, _ = r.RequestHelp(context.Background(), id, reason, history)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := r.Snapshot(id)
		if err == nil && snap.Status == models.AgentStatusAwaitingOrchestrator {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("agent %q never paused", id)
}

func TestCollect_NonBlockingSnapshot(t *testing.T) {
	r := newRegistry(t, map[string]models.AgentStatus{
		"a1": models.AgentStatusCompleted,
		"a2": models.AgentStatusRunning,
	})
	c := New(r)

	outcome := c.Collect(Request{Mode: ModeNonBlocking})
	ready, ok := outcome.(Ready)
	if !ok {
		t.Fatalf("expected Ready, got %T", outcome)
	}

	report := ready.Report
	if report.Total != 2 || report.Completed != 1 || report.Failed != 0 || report.Done {
		t.Errorf("unexpected aggregates: %+v", report)
	}
}

func TestCollect_AwaitingEntryDetails(t *testing.T) {
	r := newRegistry(t, map[string]models.AgentStatus{"a1": models.AgentStatusRunning})
	pauseAgent(t, r, "a1", "need creds", []string{"queried inbox"})
	c := New(r)

	outcome := c.Collect(Request{AgentIDs: []string{"a1"}})
	ready, ok := outcome.(Ready)
	if !ok {
		t.Fatalf("expected Ready, got %T", outcome)
	}

	if len(ready.Report.Entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(ready.Report.Entries))
	}
	entry := ready.Report.Entries[0]
	if entry.Status != models.AgentStatusAwaitingOrchestrator {
		t.Errorf("expected awaiting status, got %s", entry.Status)
	}
	if entry.AwaitingReason != "need creds" {
		t.Errorf("expected awaiting reason, got %q", entry.AwaitingReason)
	}
	if len(entry.PartialHistory) != 1 || entry.PartialHistory[0] != "queried inbox" {
		t.Errorf("expected partial history, got %v", entry.PartialHistory)
	}
	if !entry.IsActionable || entry.IsTerminal {
		t.Errorf("expected actionable non-terminal entry: %+v", entry)
	}
	if ready.Report.Done {
		t.Error("expected done=false with a paused agent")
	}
	if ready.Report.Awaiting != 1 {
		t.Errorf("expected awaiting count 1, got %d", ready.Report.Awaiting)
	}
}

func TestCollect_WaitAll(t *testing.T) {
	r := newRegistry(t, map[string]models.AgentStatus{
		"a1": models.AgentStatusCompleted,
		"a2": models.AgentStatusRunning,
	})
	c := New(r)

	timeout := 2500
	outcome := c.Collect(Request{Mode: ModeWaitAll, TimeoutMS: &timeout})
	notReady, ok := outcome.(NotReady)
	if !ok {
		t.Fatalf("expected NotReady while a2 runs, got %T", outcome)
	}
	if notReady.TimeoutMS != 2500 {
		t.Errorf("expected clamped timeout 2500, got %d", notReady.TimeoutMS)
	}
	if len(notReady.Pending) != 1 || notReady.Pending[0] != "a2" {
		t.Errorf("expected pending [a2], got %v", notReady.Pending)
	}

	// Once a2 is terminal a repeat call returns done=true.
	_ = r.Complete("a2", "ok")
	outcome = c.Collect(Request{Mode: ModeWaitAll})
	ready, ok := outcome.(Ready)
	if !ok {
		t.Fatalf("expected Ready after completion, got %T", outcome)
	}
	if !ready.Report.Done || ready.Report.Completed != 2 {
		t.Errorf("unexpected report: %+v", ready.Report)
	}
}

func TestCollect_WaitAny(t *testing.T) {
	r := newRegistry(t, map[string]models.AgentStatus{
		"a1": models.AgentStatusRunning,
		"a2": models.AgentStatusRunning,
	})
	c := New(r)

	if _, ok := c.Collect(Request{Mode: ModeWaitAny}).(NotReady); !ok {
		t.Fatal("expected NotReady with no terminal agents")
	}

	_ = r.Fail("a1", "boom")
	ready, ok := c.Collect(Request{Mode: ModeWaitAny}).(Ready)
	if !ok {
		t.Fatal("expected Ready once any agent is terminal")
	}
	if ready.Report.Failed != 1 || ready.Report.Done {
		t.Errorf("unexpected report: %+v", ready.Report)
	}
}

func TestCollect_UnknownIDsDegradeInline(t *testing.T) {
	r := newRegistry(t, map[string]models.AgentStatus{"a1": models.AgentStatusCompleted})
	c := New(r)

	ready, ok := c.Collect(Request{AgentIDs: []string{"a1", "ghost"}}).(Ready)
	if !ok {
		t.Fatal("expected Ready")
	}
	report := ready.Report
	if report.Total != 2 {
		t.Fatalf("expected 2 entries, got %d", report.Total)
	}
	var ghost Entry
	for _, e := range report.Entries {
		if e.AgentID == "ghost" {
			ghost = e
		}
	}
	if ghost.Found || ghost.Note != "no agent found" {
		t.Errorf("expected inline not-found entry, got %+v", ghost)
	}
	if report.Done {
		t.Error("a not-found entry is not terminal, done must be false")
	}

	// Wait modes never wait on agents that do not exist.
	if _, ok := c.Collect(Request{AgentIDs: []string{"ghost"}, Mode: ModeWaitAll}).(Ready); !ok {
		t.Error("expected Ready when every requested id is unknown")
	}
}

func TestClampTimeout(t *testing.T) {
	intPtr := func(v int) *int { return &v }

	tests := []struct {
		name string
		in   *int
		want int
	}{
		{name: "absent uses default", in: nil, want: DefaultWaitMS},
		{name: "negative clamps to zero", in: intPtr(-100), want: 0},
		{name: "zero stays zero", in: intPtr(0), want: 0},
		{name: "in range passes through", in: intPtr(1234), want: 1234},
		{name: "huge clamps to max", in: intPtr(10_000_000), want: MaxWaitMS},
		{name: "max boundary", in: intPtr(60000), want: 60000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClampTimeout(tc.in); got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestCollect_TranscriptTail(t *testing.T) {
	r := newRegistry(t, map[string]models.AgentStatus{"a1": models.AgentStatusRunning})
	for i := 1; i <= 6; i++ {
		_ = r.AppendTranscript("a1", fmt.Sprintf("line %d", i))
	}
	c := New(r)

	ready := c.Collect(Request{AgentIDs: []string{"a1"}, IncludeTail: true, TailLines: 2}).(Ready)
	tail := ready.Report.Entries[0].TranscriptTail
	if len(tail) != 2 || tail[0] != "line 5" || tail[1] != "line 6" {
		t.Errorf("expected last two lines, got %v", tail)
	}

	// Without IncludeTail the transcript stays out of the entry.
	ready = c.Collect(Request{AgentIDs: []string{"a1"}}).(Ready)
	if ready.Report.Entries[0].TranscriptTail != nil {
		t.Error("expected no tail when not requested")
	}
}

func TestReport_SummaryMatchesCounts(t *testing.T) {
	r := newRegistry(t, map[string]models.AgentStatus{
		"a1": models.AgentStatusCompleted,
		"a2": models.AgentStatusFailed,
		"a3": models.AgentStatusTimeout,
		"a4": models.AgentStatusRunning,
	})
	c := New(r)

	report := c.Collect(Request{}).(Ready).Report

	// completed + failed(+timeout) + non-terminal == total
	nonTerminal := 0
	for _, e := range report.Entries {
		if !e.IsTerminal {
			nonTerminal++
		}
	}
	if report.Completed+report.Failed+nonTerminal != report.Total {
		t.Errorf("aggregate identity violated: %+v", report)
	}

	lines := report.Summary()
	if len(lines) != report.Total+1 {
		t.Fatalf("expected header plus one line per entry, got %d lines", len(lines))
	}
	wantHeader := "3/4 agents terminal (1 completed, 2 failed, 0 awaiting), done=false"
	if lines[0] != wantHeader {
		t.Errorf("summary diverged from counts:\n got %q\nwant %q", lines[0], wantHeader)
	}
}
