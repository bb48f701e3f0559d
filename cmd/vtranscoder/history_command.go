package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vtranscoder/internal/services"
	"vtranscoder/internal/state"
)

var titleCaser = cases.Title(language.English)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		failedOnly bool
		clear      bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or clear processed files",
		Long: "List the processed-file history. Files recorded as failed are retried on the next pass;\n" +
			"--clear --failed forgets only those, --clear forgets everything so every file is processed again.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := ctx.openStore()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()

			if clear {
				if failedOnly {
					removed, err := store.History.RemoveFailed()
					if err != nil {
						return fmt.Errorf("clear failed entries: %w", err)
					}
					fmt.Fprintf(stdout, "Removed %d failed entries\n", removed)
					return nil
				}
				if err := store.History.Clear(); err != nil {
					return fmt.Errorf("clear history: %w", err)
				}
				fmt.Fprintln(stdout, "History cleared")
				return nil
			}

			entries, err := store.History.Entries()
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}
			entries = filterHistory(entries, failedOnly)
			if asJSON {
				if entries == nil {
					entries = []state.HistoryEntry{}
				}
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "No history entries")
				return nil
			}
			fmt.Fprintln(stdout, renderTable(
				[]string{"Date", "Result", "Source", "Output"},
				historyRows(entries),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only failed entries")
	cmd.Flags().BoolVar(&clear, "clear", false, "Remove entries instead of listing them")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// filterHistory returns entries newest first, optionally failures only.
func filterHistory(entries []state.HistoryEntry, failedOnly bool) []state.HistoryEntry {
	var out []state.HistoryEntry
	for _, entry := range entries {
		if failedOnly && entry.Success {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func historyRows(entries []state.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		result := services.OutcomeFailed
		if entry.Success {
			result = services.OutcomeSuccess
		}
		output := entry.OutputPath
		if output == "" {
			output = "-"
		}
		rows = append(rows, []string{
			entry.Timestamp.Local().Format("2006-01-02 15:04"),
			titleCaser.String(result.String()),
			entry.SourcePath,
			output,
		})
	}
	return rows
}
