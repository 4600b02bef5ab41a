package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
)

var subjectCmd = &cobra.Command{
	Use:   "subject",
	Short: "Create and inspect subjects",
}

var (
	createState  uint
	createTarget uint
	createDate   string
	createNote   string
)

var subjectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a subject at its first state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := pipeline.CreateSubjectBody{
			Name: args[0],
			TransitionRequest: pipeline.TransitionRequest{
				StateID:    createState,
				TargetDate: createDate,
				Note:       createNote,
			},
		}
		if cmd.Flags().Changed("target-state") {
			body.TargetStateID = &createTarget
		}

		var res pipeline.TransitionResponse
		if err := newClient().postJSON(kindPath()+"/subjects", body, &res); err != nil {
			return fmt.Errorf("failed to create subject: %w", err)
		}
		return printResult(cmd, res)
	},
}

var subjectGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var s pipeline.SubjectResponse
		if err := newClient().getJSON(subjectPath(args[0]), &s); err != nil {
			return fmt.Errorf("failed to get subject: %w", err)
		}
		if structured() {
			return printOutput(cmd.OutOrStdout(), s)
		}
		printSubject(cmd, s)
		return nil
	},
}

func init() {
	subjectCreateCmd.Flags().UintVar(&createState, "state", 0, "Initial state id")
	subjectCreateCmd.Flags().UintVar(&createTarget, "target-state", 0, "Committed target state id")
	subjectCreateCmd.Flags().StringVar(&createDate, "target-date", "", "Committed target date (YYYY-MM-DD)")
	subjectCreateCmd.Flags().StringVar(&createNote, "note", "", "Note recorded with the creation")
	_ = subjectCreateCmd.MarkFlagRequired("state")

	subjectCmd.AddCommand(subjectCreateCmd)
	subjectCmd.AddCommand(subjectGetCmd)
}

func subjectPath(id string) string {
	return kindPath() + "/subjects/" + id
}

func printSubject(cmd *cobra.Command, s pipeline.SubjectResponse) {
	printTable(cmd.OutOrStdout(), []string{"Field", "Value"}, [][]string{
		{"ID", fmt.Sprint(s.ID)},
		{"Name", s.Name},
		{"State", uintOrDash(s.CurrentStateID)},
		{"Target state", uintOrDash(s.CommittedTargetStateID)},
		{"Target date", orDash(s.CommittedTargetDate)},
		{"Pending reason", orDash(s.PendingReasonText)},
		{"Lost reason", orDash(s.LostReasonText)},
		{"Response due", orDash(s.PendingResponseDueDate)},
		{"Version", fmt.Sprint(s.Version)},
	})
}
