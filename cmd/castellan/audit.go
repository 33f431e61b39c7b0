package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/castellan-ai/castellan/internal/audit"
	"github.com/castellan-ai/castellan/internal/config"
	"github.com/spf13/cobra"
)

var (
	auditDBPath string
	auditLimit  int
	auditJSON   bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent dispatch audit records",
	Long: `List the most recent dispatch audit records, newest first.

Every admitted dispatch writes one record: who was dispatched, with which
skills and budget, under which conversation. Rejected dispatches never
reach the store.

Examples:
  castellan audit                 # Last 50 dispatches, human-readable
  castellan audit --limit 10      # Last 10
  castellan audit --json | jq .   # Machine-readable output`,
	RunE: runAuditList,
}

func init() {
	auditCmd.Flags().StringVar(&auditDBPath, "db", "", "Audit database path (default from config)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum records to list")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output in JSON format")
}

func runAuditList(cmd *cobra.Command, args []string) error {
	dbPath := auditDBPath
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dbPath = cfg.Audit.DBPath
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("audit database not found: %s", dbPath)
	}

	store, err := audit.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer store.Close()

	entries, err := store.List(context.Background(), auditLimit)
	if err != nil {
		return fmt.Errorf("list audit records: %w", err)
	}

	if auditJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No dispatch records.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-16s  skills=[%s]  budget=%d",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.AgentID, strings.Join(e.Skills, ", "), e.MaxSkillCalls)
		if e.Model != "" {
			fmt.Printf("  model=%s", e.Model)
		}
		fmt.Printf("\n    %s\n", e.Mission)
	}
	return nil
}
