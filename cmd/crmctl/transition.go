package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
)

var (
	trState         uint
	trTarget        uint
	trTargetDate    string
	trNote          string
	trOutcomeReason string
	trDueDate       string
	trAck           bool
	trDryRun        bool
)

var transitionCmd = &cobra.Command{
	Use:   "transition <id>",
	Short: "Move a subject to a state and commitment",
	Long: `transition proposes a new position for a subject. The server detects the
events the change implies, validates them and records one history row per
event. A change that needs a note is refused until --note is given.

Use --dry-run to see the events and alerts without writing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := pipeline.TransitionRequest{
			StateID:                trState,
			TargetDate:             trTargetDate,
			Note:                   trNote,
			OutcomeReason:          trOutcomeReason,
			PendingResponseDueDate: trDueDate,
			AlertAcknowledged:      trAck,
		}
		if cmd.Flags().Changed("target-state") {
			body.TargetStateID = &trTarget
		}

		client := newClient()
		if trDryRun {
			var preview pipeline.PreviewResult
			if err := client.postJSON(subjectPath(args[0])+"/transitions/preview", body, &preview); err != nil {
				return fmt.Errorf("failed to preview transition: %w", err)
			}
			if structured() {
				return printOutput(cmd.OutOrStdout(), preview)
			}
			printEvents(cmd, preview.Detection.Events)
			printAlerts(cmd, preview.Validation.Alerts)
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %t\n", preview.Validation.IsValid)
			return nil
		}

		var res pipeline.TransitionResponse
		if err := client.postJSON(subjectPath(args[0])+"/transitions", body, &res); err != nil {
			return fmt.Errorf("failed to apply transition: %w", err)
		}
		return printResult(cmd, res)
	},
}

func init() {
	transitionCmd.Flags().UintVar(&trState, "state", 0, "Proposed state id")
	transitionCmd.Flags().UintVar(&trTarget, "target-state", 0, "Committed target state id")
	transitionCmd.Flags().StringVar(&trTargetDate, "target-date", "", "Committed target date (YYYY-MM-DD)")
	transitionCmd.Flags().StringVar(&trNote, "note", "", "Note recorded with the change")
	transitionCmd.Flags().StringVar(&trOutcomeReason, "outcome-reason", "", "Reason for a lost or pending outcome")
	transitionCmd.Flags().StringVar(&trDueDate, "due-date", "", "Response due date for a pending state (YYYY-MM-DD)")
	transitionCmd.Flags().BoolVar(&trAck, "ack", false, "Acknowledge warnings")
	transitionCmd.Flags().BoolVar(&trDryRun, "dry-run", false, "Preview events and alerts without applying")
	_ = transitionCmd.MarkFlagRequired("state")
}

// printResult prints a write result. A blocked write is an error so scripts
// see a non-zero exit.
func printResult(cmd *cobra.Command, res pipeline.TransitionResponse) error {
	if structured() {
		if err := printOutput(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		switch res.Outcome {
		case pipeline.OutcomeNoChange:
			fmt.Fprintln(cmd.OutOrStdout(), "No change.")
		default:
			printEvents(cmd, res.Events)
			printAlerts(cmd, res.Alerts)
			if res.Subject != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Subject %d is now in state %s (version %d)\n",
					res.Subject.ID, uintOrDash(res.Subject.CurrentStateID), res.Subject.Version)
			}
		}
	}
	if res.Outcome == pipeline.OutcomeValidationBlocked {
		return errors.New("transition blocked: " + res.Error)
	}
	return nil
}

func printEvents(cmd *cobra.Command, events []pipeline.DetectedEvent) {
	if len(events) == 0 {
		return
	}
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		date := "-"
		if ev.TargetDate != nil {
			date = ev.TargetDate.Format("2006-01-02")
		}
		rows = append(rows, []string{
			string(ev.Type), uintOrDash(ev.FromStateID), uintOrDash(ev.ToStateID), date, orDash(ev.SubType),
		})
	}
	printTable(cmd.OutOrStdout(), []string{"Event", "From", "To", "Target date", "Sub-type"}, rows)
}

func printAlerts(cmd *cobra.Command, alerts []pipeline.Alert) {
	if len(alerts) == 0 {
		return
	}
	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []string{a.Severity.String(), a.Code, truncate(strings.TrimSpace(a.Message), 70)})
	}
	printTable(cmd.OutOrStdout(), []string{"Severity", "Code", "Message"}, rows)
}
