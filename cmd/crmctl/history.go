package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
)

var historyIncludeVoided bool

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the audit history of a subject, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := subjectPath(args[0]) + "/history"
		if historyIncludeVoided {
			path += "?includeVoided=true"
		}
		var list pipeline.HistoryList
		if err := newClient().getJSON(path, &list); err != nil {
			return fmt.Errorf("failed to get history: %w", err)
		}
		if structured() {
			return printOutput(cmd.OutOrStdout(), list)
		}

		rows := make([][]string, 0, len(list.Entries))
		for _, h := range list.Entries {
			event := string(h.EventType)
			if h.IsVoided {
				event += " (voided)"
			}
			rows = append(rows, []string{
				fmt.Sprint(h.ID), h.RecordedAt, event,
				uintOrDash(h.FromStateID), uintOrDash(h.ToStateID), orDash(h.TargetDate),
				orDash(h.SubType), orDash(h.ChangedBy), truncate(orDash(h.Note), 40),
			})
		}
		printTable(cmd.OutOrStdout(), []string{"ID", "Recorded", "Event", "From", "To", "Target date", "Sub-type", "By", "Note"}, rows)
		return nil
	},
}

var voidCmd = &cobra.Command{
	Use:   "void <history-id>",
	Short: "Retract a history row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var entry pipeline.HistoryEntry
		if err := newClient().postJSON(apiBase+"/history/"+args[0]+"/void", nil, &entry); err != nil {
			return fmt.Errorf("failed to void history row: %w", err)
		}
		if structured() {
			return printOutput(cmd.OutOrStdout(), entry)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Voided history row %d (%s)\n", entry.ID, entry.EventType)
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyIncludeVoided, "include-voided", false, "Include voided rows")
}
