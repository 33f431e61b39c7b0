package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/castellan-ai/castellan/internal/admission"
	"github.com/castellan-ai/castellan/internal/audit"
	"github.com/castellan-ai/castellan/internal/catalog"
	"github.com/castellan-ai/castellan/internal/collect"
	"github.com/castellan-ai/castellan/pkg/models"
)

// newEngine builds an engine over an in-memory catalog and audit store.
func newEngine(t *testing.T, cfg Config, skills ...string) *Engine {
	t.Helper()
	cat := catalog.NewMemory()
	for _, s := range skills {
		cat.Register(catalog.Skill{Name: s})
	}
	cfg.Catalog = cat
	if cfg.Audit == nil {
		cfg.Audit = audit.NewMemoryStore()
	}
	return New(cfg)
}

// dispatchOne admits and returns a single launch.
func dispatchOne(t *testing.T, e *Engine, id, skill string) models.Launch {
	t.Helper()
	launches, err := e.Dispatch(context.Background(), []models.DispatchRequest{
		{AgentID: id, Mission: "mission for " + id, Skills: []string{skill}},
	})
	if err != nil {
		t.Fatalf("dispatch %s: %v", id, err)
	}
	return launches[0]
}

func TestEngine_RunToCompletion(t *testing.T) {
	e := newEngine(t, Config{}, "email.search")
	ctx := context.Background()

	launch := dispatchOne(t, e, "a1", "email.search")
	err := e.Start(ctx, launch, func(ctx context.Context, h *Handle) (string, error) {
		h.Note("searching inbox")
		if err := h.UseSkill(ctx, "email.search", func(context.Context) error { return nil }); err != nil {
			return "", err
		}
		return "3 invoices found", nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	e.Wait()

	report := e.Await(ctx, collect.Request{Mode: collect.ModeWaitAll, IncludeTail: true})
	if !report.Done || report.Completed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	entry := report.Entries[0]
	if entry.Result != "3 invoices found" || entry.ToolCallsUsed != 1 {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if len(entry.TranscriptTail) != 1 || entry.TranscriptTail[0] != "searching inbox" {
		t.Errorf("unexpected transcript: %v", entry.TranscriptTail)
	}
}

func TestEngine_AgentBudgetEnforced(t *testing.T) {
	e := newEngine(t, Config{}, "email.search")
	ctx := context.Background()

	launches, err := e.Dispatch(ctx, []models.DispatchRequest{
		{AgentID: "a1", Mission: "m", Skills: []string{"email.search"}, MaxSkillCalls: 2},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var refusal error
	err = e.Start(ctx, launches[0], func(ctx context.Context, h *Handle) (string, error) {
		for i := 0; i < 3; i++ {
			if err := h.UseSkill(ctx, "email.search", func(context.Context) error { return nil }); err != nil {
				refusal = err
				return "", err
			}
		}
		return "", nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	e.Wait()

	var rej *admission.Rejection
	if !errors.As(refusal, &rej) || rej.Level != admission.LevelAgentBudget {
		t.Fatalf("expected level-2 rejection on third call, got %v", refusal)
	}

	report := e.Await(ctx, collect.Request{Mode: collect.ModeWaitAll})
	if report.Failed != 1 {
		t.Errorf("expected the agent to fail on refusal: %+v", report)
	}
}

func TestEngine_FuseOpensAfterFailures(t *testing.T) {
	e := newEngine(t, Config{Fuse: admission.FuseConfig{Threshold: 2}}, "drive.search")
	ctx := context.Background()

	boom := errors.New("upstream 500")
	launch := dispatchOne(t, e, "a1", "drive.search")
	_ = e.Start(ctx, launch, func(ctx context.Context, h *Handle) (string, error) {
		for i := 0; i < 2; i++ {
			_ = h.UseSkill(ctx, "drive.search", func(context.Context) error { return boom })
		}
		// Third invocation is refused by the now-open fuse.
		err := h.UseSkill(ctx, "drive.search", func(context.Context) error { return nil })
		var rej *admission.Rejection
		if !errors.As(err, &rej) || rej.Level != admission.LevelSkillFuse {
			return "", fmt.Errorf("expected open fuse, got %v", err)
		}
		return "fuse verified", nil
	})
	e.Wait()

	report := e.Await(ctx, collect.Request{Mode: collect.ModeWaitAll})
	if report.Completed != 1 {
		t.Fatalf("scripted agent reported: %+v", report.Entries)
	}

	if got := e.Fuses().State("drive.search"); got != admission.FuseOpen {
		t.Errorf("expected open fuse, got %v", got)
	}
	e.Fuses().Reset("drive.search")
	if got := e.Fuses().State("drive.search"); got != admission.FuseClosed {
		t.Errorf("expected closed fuse after reset, got %v", got)
	}
}

func TestEngine_PauseResumeRoundTrip(t *testing.T) {
	e := newEngine(t, Config{}, "memory.store")
	ctx := context.Background()

	launch := dispatchOne(t, e, "a1", "memory.store")
	got := make(chan models.ResumeUpdate, 1)
	_ = e.Start(ctx, launch, func(ctx context.Context, h *Handle) (string, error) {
		update, err := h.RequestHelp(ctx, "need creds", []string{"tried default token"})
		if err != nil {
			return "", err
		}
		got <- update
		return "stored with " + update.Message, nil
	})

	// Scenario: a paused agent surfaces its reason in a non-blocking
	// snapshot with done=false.
	deadline := time.Now().Add(2 * time.Second)
	var entry collect.Entry
	for time.Now().Before(deadline) {
		report := e.Collect(collect.Request{AgentIDs: []string{"a1"}}).(collect.Ready).Report
		entry = report.Entries[0]
		if entry.Status == models.AgentStatusAwaitingOrchestrator {
			if report.Done {
				t.Fatal("done must be false while an agent is paused")
			}
			break
		}
		time.Sleep(time.Millisecond)
	}
	if entry.AwaitingReason != "need creds" {
		t.Fatalf("expected awaiting entry, got %+v", entry)
	}

	// Empty updates are rejected before any state change.
	if err := e.Resume("a1", models.ResumeUpdate{}); err == nil {
		t.Fatal("expected empty update to be rejected")
	}
	if err := e.Resume("a1", models.ResumeUpdate{Message: "vault token"}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	e.Wait()

	update := <-got
	if update.Message != "vault token" {
		t.Errorf("unexpected update: %+v", update)
	}

	report := e.Await(ctx, collect.Request{Mode: collect.ModeWaitAll})
	if !report.Done || report.Entries[0].Result != "stored with vault token" {
		t.Errorf("unexpected final report: %+v", report)
	}
}

func TestEngine_AwaitDegradesToSnapshot(t *testing.T) {
	e := newEngine(t, Config{}, "email.search")
	ctx := context.Background()

	release := make(chan struct{})
	launch := dispatchOne(t, e, "a1", "email.search")
	_ = e.Start(ctx, launch, func(ctx context.Context, h *Handle) (string, error) {
		<-release
		return "done", nil
	})

	timeout := 50
	start := time.Now()
	report := e.Await(ctx, collect.Request{Mode: collect.ModeWaitAll, TimeoutMS: &timeout})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("await did not respect timeout: %s", elapsed)
	}
	// Degraded snapshot, not an error: the running agent is visible.
	if report.Done || report.Total != 1 {
		t.Errorf("unexpected degraded report: %+v", report)
	}

	close(release)
	e.Wait()

	report = e.Await(ctx, collect.Request{Mode: collect.ModeWaitAll})
	if !report.Done {
		t.Errorf("expected done after release: %+v", report)
	}
}

func TestEngine_EmitAfterCloseDropsEvent(t *testing.T) {
	e := newEngine(t, Config{}, "email.search")
	ctx := context.Background()

	launch := dispatchOne(t, e, "a1", "email.search")
	_ = e.Start(ctx, launch, func(ctx context.Context, h *Handle) (string, error) {
		return "ok", nil
	})
	e.Close()
	e.Close() // idempotent

	// Dispatching after Close must not panic on the closed event channel.
	before := e.DroppedEventCount()
	if _, err := e.Dispatch(ctx, []models.DispatchRequest{
		{AgentID: "a2", Mission: "late", Skills: []string{"email.search"}},
	}); err != nil {
		t.Fatalf("dispatch after close: %v", err)
	}
	if e.DroppedEventCount() != before+1 {
		t.Errorf("expected the late event counted as dropped, got %d -> %d",
			before, e.DroppedEventCount())
	}
}

func TestEngine_EventsCarryLifecycle(t *testing.T) {
	e := newEngine(t, Config{}, "email.search")
	ctx := context.Background()

	launch := dispatchOne(t, e, "a1", "email.search")
	_ = e.Start(ctx, launch, func(ctx context.Context, h *Handle) (string, error) {
		return "ok", nil
	})
	e.Close()

	seen := make(map[EventType]bool)
	for ev := range e.Events() {
		seen[ev.Type] = true
	}
	for _, want := range []EventType{EventDispatchAdmitted, EventAgentStarted, EventAgentCompleted} {
		if !seen[want] {
			t.Errorf("missing event %s", want)
		}
	}
}
