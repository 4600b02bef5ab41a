package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/pipeline"
)

var statesCmd = &cobra.Command{
	Use:   "states",
	Short: "Inspect and extend the state catalog",
}

var statesIncludeInactive bool

var statesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog states in display order",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := kindPath() + "/states"
		if statesIncludeInactive {
			path += "?includeInactive=true"
		}
		var list pipeline.StateList
		if err := newClient().getJSON(path, &list); err != nil {
			return fmt.Errorf("failed to list states: %w", err)
		}
		if structured() {
			return printOutput(cmd.OutOrStdout(), list)
		}

		rows := make([][]string, 0, len(list.States))
		for _, s := range list.States {
			order := "-"
			if s.DisplayOrder != nil {
				order = fmt.Sprint(*s.DisplayOrder)
			}
			rows = append(rows, []string{
				fmt.Sprint(s.ID), s.Name, string(s.Category), order,
				fmt.Sprint(s.IsActive), fmt.Sprint(s.Checkpoint),
			})
		}
		printTable(cmd.OutOrStdout(), []string{"ID", "Name", "Category", "Order", "Active", "Checkpoint"}, rows)
		return nil
	},
}

var (
	stateName       string
	stateCategory   string
	stateOrder      int
	stateCheckpoint bool
	stateStaleDays  int
)

var statesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a state to the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		def := pipeline.StateDefinition{
			Name:       stateName,
			Category:   pipeline.StateCategory(stateCategory),
			Checkpoint: stateCheckpoint,
		}
		if cmd.Flags().Changed("order") {
			def.DisplayOrder = &stateOrder
		}
		if cmd.Flags().Changed("stale-after") {
			def.StaleAfterDays = &stateStaleDays
		}

		var created pipeline.StateDefinition
		if err := newClient().postJSON(kindPath()+"/states", def, &created); err != nil {
			return fmt.Errorf("failed to create state: %w", err)
		}
		if structured() {
			return printOutput(cmd.OutOrStdout(), created)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created state %d (%s)\n", created.ID, created.Name)
		return nil
	},
}

func init() {
	statesListCmd.Flags().BoolVar(&statesIncludeInactive, "include-inactive", false, "Include retired states")

	statesCreateCmd.Flags().StringVar(&stateName, "name", "", "State name")
	statesCreateCmd.Flags().StringVar(&stateCategory, "category", "normal", "Category: normal, pending, won, lost")
	statesCreateCmd.Flags().IntVar(&stateOrder, "order", 0, "Display order")
	statesCreateCmd.Flags().BoolVar(&stateCheckpoint, "checkpoint", false, "Reaching this state counts as an achievement")
	statesCreateCmd.Flags().IntVar(&stateStaleDays, "stale-after", 0, "Days after which a subject in this state is flagged")
	_ = statesCreateCmd.MarkFlagRequired("name")

	statesCmd.AddCommand(statesListCmd)
	statesCmd.AddCommand(statesCreateCmd)
}
