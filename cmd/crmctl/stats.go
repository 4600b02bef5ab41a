package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
)

var statsCmd = &cobra.Command{
	Use:   "stats <id>",
	Short: "Show statistics reconstructed from a subject's history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var st pipeline.Statistics
		if err := newClient().getJSON(subjectPath(args[0])+"/statistics", &st); err != nil {
			return fmt.Errorf("failed to get statistics: %w", err)
		}
		if structured() {
			return printOutput(cmd.OutOrStdout(), st)
		}

		since, last := "-", "-"
		if st.CurrentStateStartDate != nil {
			since = st.CurrentStateStartDate.Format("2006-01-02")
		}
		if st.LastCommitmentDate != nil {
			last = st.LastCommitmentDate.Format("2006-01-02")
		}
		printTable(cmd.OutOrStdout(), []string{"Metric", "Value"}, [][]string{
			{"Achieved", fmt.Sprint(st.AchievedCount)},
			{"Cancelled", fmt.Sprint(st.CancelledCount)},
			{"Achievement rate", fmt.Sprintf("%d%%", st.AchievementRate)},
			{"Moves back", fmt.Sprint(st.BackCount)},
			{"Days in state", fmt.Sprint(st.CurrentStateDwellDays)},
			{"In state since", since},
			{"Last commitment", last},
		})
		return nil
	},
}

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List subjects waiting too long in a watched state",
	RunE: func(cmd *cobra.Command, args []string) error {
		var list pipeline.StaleList
		if err := newClient().getJSON(kindPath()+"/stale", &list); err != nil {
			return fmt.Errorf("failed to list stale subjects: %w", err)
		}
		if structured() {
			return printOutput(cmd.OutOrStdout(), list)
		}

		rows := make([][]string, 0, len(list.Subjects))
		for _, s := range list.Subjects {
			rows = append(rows, []string{
				fmt.Sprint(s.Subject.ID), s.Subject.Name, uintOrDash(s.Subject.CurrentStateID), s.Alert.Message,
			})
		}
		printTable(cmd.OutOrStdout(), []string{"ID", "Name", "State", "Alert"}, rows)
		return nil
	},
}
