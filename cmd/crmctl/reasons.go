package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
)

var (
	rsPending string
	rsLost    string
	rsDue     string
)

var reasonsCmd = &cobra.Command{
	Use:   "reasons <id>",
	Short: "Update the reason fields of a subject",
	Long: `reasons sets the pending reason, lost reason or response due date of a
subject without moving it. Only the flags given are sent; pass an empty value
to clear a field.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body pipeline.ReasonsRequest
		flags := cmd.Flags()
		if flags.Changed("pending-reason") {
			body.PendingReasonText = &rsPending
		}
		if flags.Changed("lost-reason") {
			body.LostReasonText = &rsLost
		}
		if flags.Changed("due-date") {
			body.PendingResponseDueDate = &rsDue
		}
		var res pipeline.TransitionResponse
		if err := newClient().patchJSON(subjectPath(args[0])+"/reasons", body, &res); err != nil {
			return fmt.Errorf("failed to update reasons: %w", err)
		}
		return printResult(cmd, res)
	},
}

func init() {
	reasonsCmd.Flags().StringVar(&rsPending, "pending-reason", "", "Pending reason")
	reasonsCmd.Flags().StringVar(&rsLost, "lost-reason", "", "Lost reason")
	reasonsCmd.Flags().StringVar(&rsDue, "due-date", "", "Response due date (YYYY-MM-DD)")
}
