package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/castellan-ai/castellan/internal/audit"
	"github.com/castellan-ai/castellan/internal/catalog"
	"github.com/castellan-ai/castellan/internal/collect"
	"github.com/castellan-ai/castellan/internal/config"
	"github.com/castellan-ai/castellan/internal/engine"
	"github.com/castellan-ai/castellan/internal/logging"
	"github.com/castellan-ai/castellan/pkg/models"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	simulateAuditDB string
	simulateNoAudit bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted dispatch turn against the admission core",
	Long: `Run one scripted conversation turn through the full stack: dispatch
admission, the per-skill fuse, agent budgets, the pause/resume handshake
and result collection.

The simulation dispatches three agents:
  - searcher    completes after two skill calls
  - archivist   pauses for orchestrator input and is resumed
  - flaky       fails its skill until the fuse opens

Admitted dispatches are written to the audit database (castellan audit
lists them afterwards) unless --no-audit is set.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAuditDB, "audit-db", "", "Audit database path (default from config)")
	simulateCmd.Flags().BoolVar(&simulateNoAudit, "no-audit", false, "Keep audit records in memory only")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, cleanup, err := openSimulateStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := logging.Nop()
	if cfg.Logging.DebugLog != "" {
		logger, err = logging.NewDebugLogger(cfg.Logging.DebugLog)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		defer logger.Close()
	}

	skills := catalog.NewMemory()
	skills.Register(catalog.Skill{Name: "email.search", Description: "Search the mailbox"})
	skills.Register(catalog.Skill{Name: "memory.store", Description: "Persist a note"})
	skills.Register(catalog.Skill{Name: "drive.search", Description: "Search cloud storage"})

	eng := engine.New(engine.Config{
		Catalog:            skills,
		Audit:              store,
		Fuse:               cfg.AdmissionFuse(),
		TurnAgents:         cfg.Limits.TurnAgents,
		TurnSkillCalls:     cfg.Limits.TurnSkillCalls,
		AgentSkillCalls:    cfg.Limits.AgentSkillCalls,
		ConversationCalls:  cfg.Limits.ConversationCalls,
		ConversationWindow: cfg.Limits.ConversationWindow,
		Logger:             logger,
	})
	eng.SetConversationID(uuid.New().String())
	eng.Registry().SetTranscriptLimit(cfg.Collect.TranscriptTail)

	var printerWG sync.WaitGroup
	printerWG.Add(1)
	go func() {
		defer printerWG.Done()
		printEvents(eng.Events())
	}()

	ctx := context.Background()
	launches, err := eng.Dispatch(ctx, []models.DispatchRequest{
		{AgentID: "searcher", Mission: "Find last month's invoices", Skills: []string{"email.search"}},
		{AgentID: "archivist", Mission: "File the quarterly report", Skills: []string{"memory.store"}},
		{AgentID: "flaky", Mission: "Pull shared drive metadata", Skills: []string{"drive.search"}, MaxSkillCalls: 10},
	})
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	byID := make(map[string]models.Launch, len(launches))
	for _, l := range launches {
		byID[l.AgentID] = l
	}

	if err := eng.Start(ctx, byID["searcher"], searcherAgent); err != nil {
		return err
	}
	if err := eng.Start(ctx, byID["archivist"], archivistAgent); err != nil {
		return err
	}
	if err := eng.Start(ctx, byID["flaky"], flakyAgent); err != nil {
		return err
	}

	// Play orchestrator: wait for the archivist to pause, then resume it.
	if err := resumeWhenPaused(eng, "archivist", models.ResumeUpdate{
		Message: "Use the Q2 folder",
		Skills:  []string{"memory.store"},
	}); err != nil {
		return err
	}

	report := eng.Await(ctx, collect.Request{Mode: collect.ModeWaitAll, IncludeTail: true})
	eng.Close()
	printerWG.Wait()

	fmt.Println()
	for _, line := range report.Summary() {
		fmt.Println(line)
	}
	if dropped := eng.DroppedEventCount(); dropped > 0 {
		fmt.Printf("(%d events dropped)\n", dropped)
	}
	return nil
}

// openSimulateStore picks the audit backend from the flags and config.
func openSimulateStore(cfg *config.Config) (audit.Store, func(), error) {
	if simulateNoAudit {
		return audit.NewMemoryStore(), func() {}, nil
	}
	path := simulateAuditDB
	if path == "" {
		path = cfg.Audit.DBPath
	}
	store, err := audit.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit store: %w", err)
	}
	return store, func() { store.Close() }, nil
}

func searcherAgent(ctx context.Context, h *engine.Handle) (string, error) {
	h.Note("scanning inbox")
	for i := 0; i < 2; i++ {
		if err := h.UseSkill(ctx, "email.search", func(context.Context) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		}); err != nil {
			return "", err
		}
	}
	return "3 invoices found", nil
}

func archivistAgent(ctx context.Context, h *engine.Handle) (string, error) {
	h.Note("report drafted, destination unclear")
	update, err := h.RequestHelp(ctx, "which folder should the report go to?",
		[]string{"drafted summary", "found two candidate folders"})
	if err != nil {
		return "", err
	}
	if err := h.UseSkill(ctx, "memory.store", func(context.Context) error { return nil }); err != nil {
		return "", err
	}
	return "filed per instruction: " + update.Message, nil
}

func flakyAgent(ctx context.Context, h *engine.Handle) (string, error) {
	upstream := errors.New("drive API returned 503")
	for {
		err := h.UseSkill(ctx, "drive.search", func(context.Context) error {
			return upstream
		})
		if err == nil {
			continue
		}
		if errors.Is(err, upstream) {
			// Upstream failure counted against the fuse; try again.
			continue
		}
		// Admission refused the call, the fuse is open.
		return "", err
	}
}

// resumeWhenPaused polls until the agent is awaiting the orchestrator, then
// delivers the update.
func resumeWhenPaused(eng *engine.Engine, agentID string, update models.ResumeUpdate) error {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := eng.Registry().Snapshot(agentID)
		if err != nil {
			return err
		}
		if snap.Status == models.AgentStatusAwaitingOrchestrator {
			return eng.Resume(agentID, update)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("agent %s never paused", agentID)
}

// printEvents renders the engine's event stream until the channel closes.
func printEvents(events <-chan engine.Event) {
	for ev := range events {
		switch ev.Type {
		case engine.EventDispatchAdmitted:
			fmt.Printf("%s %s\n", color.GreenString("✓"), "dispatch admitted")
		case engine.EventAgentStarted:
			fmt.Printf("%s %s started\n", color.CyanString("▸"), ev.AgentID)
		case engine.EventAgentPaused:
			fmt.Printf("%s %s paused: %s\n", color.YellowString("⏸"), ev.AgentID, ev.Message)
		case engine.EventAgentResumed:
			fmt.Printf("%s %s resumed\n", color.CyanString("▸"), ev.AgentID)
		case engine.EventAgentCompleted:
			fmt.Printf("%s %s completed\n", color.GreenString("✓"), ev.AgentID)
		case engine.EventAgentFailed:
			fmt.Printf("%s %s failed: %v\n", color.RedString("✗"), ev.AgentID, ev.Err)
		case engine.EventAgentTimeout:
			fmt.Printf("%s %s timed out\n", color.RedString("✗"), ev.AgentID)
		case engine.EventSkillRefused:
			fmt.Printf("%s %s refused %s: %v\n", color.YellowString("⚠"), ev.AgentID, ev.Skill, ev.Err)
		}
	}
}
