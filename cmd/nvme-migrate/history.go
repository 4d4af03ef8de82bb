package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/karen20ced4/NVME-Migrate/internal/config"
	"github.com/karen20ced4/NVME-Migrate/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past migration runs",
	Long: `Show the run history recorded in the journal database.

Each run is recorded with its detected topology, destination and outcome.
The journal is informational only: migrations never read previous state.`,
	Run: runHistory,
}

func init() {
	historyCmd.Flags().Bool("json", false, "Output as JSON")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to show")
	historyCmd.Flags().String("events", "", "Show step events for the given session id")
}

func openJournal() (*journal.DB, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return journal.New(cfg.JournalPath)
}

func runHistory(cmd *cobra.Command, args []string) {
	db, err := openJournal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening journal: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	jsonOut, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")
	eventsFor, _ := cmd.Flags().GetString("events")

	if eventsFor != "" {
		events, err := db.SessionEvents(eventsFor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(events)
			return
		}
		for _, e := range events {
			fmt.Printf("%s  %-14s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Step, e.Detail)
		}
		return
	}

	sessions, err := db.RecentSessions(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(sessions) == 0 {
		fmt.Println("No migration runs recorded.")
		return
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(sessions)
		return
	}

	fmt.Printf("%-36s %-20s %-6s %-14s %-14s %s\n", "ID", "STARTED", "MODE", "SOURCE", "DEST", "OUTCOME")
	fmt.Println(strings.Repeat("-", 110))
	for _, s := range sessions {
		outcome := s.Outcome
		if s.Failure != "" {
			outcome += ": " + s.Failure
		}
		fmt.Printf("%-36s %-20s %-6s %-14s %-14s %s\n",
			s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.BootMode, s.SourceDisk, s.DestDisk, outcome)
	}
}
