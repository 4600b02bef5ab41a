package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kazuma-ddci/stella-crm-sub002/pkg/audit"
)

var (
	auditActor     string
	auditAction    string
	auditOutcome   string
	auditPageSize  int
	auditPageToken string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List audited API calls in the namespace, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q := url.Values{}
		for key, val := range map[string]string{"actor": auditActor, "action": auditAction, "outcome": auditOutcome, "pageToken": auditPageToken} {
			if val != "" {
				q.Set(key, val)
			}
		}
		if auditPageSize > 0 {
			q.Set("pageSize", strconv.Itoa(auditPageSize))
		}
		path := apiBase + "/audit/events"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var list audit.EventList
		if err := newClient().getJSON(path, &list); err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}
		if structured() {
			return printOutput(cmd.OutOrStdout(), list)
		}

		rows := make([][]string, 0, len(list.Events))
		for _, e := range list.Events {
			rows = append(rows, []string{
				e.CreatedAt, e.Actor, e.Action, orDash(e.Kind), orDash(e.ResourceID), e.Outcome, strconv.Itoa(e.StatusCode),
			})
		}
		printTable(cmd.OutOrStdout(), []string{"Time", "Actor", "Action", "Kind", "Resource", "Outcome", "Status"}, rows)
		if list.NextPageToken != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "\nMore events: --page-token %s\n", list.NextPageToken)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditActor, "actor", "", "Only calls made by this user")
	auditCmd.Flags().StringVar(&auditAction, "action", "", "Only this action (transition, create-subject, void-history, ...)")
	auditCmd.Flags().StringVar(&auditOutcome, "outcome", "", "Only this outcome (success, blocked, conflict, rejected, failure)")
	auditCmd.Flags().IntVar(&auditPageSize, "page-size", 0, "Events per page (server default when 0)")
	auditCmd.Flags().StringVar(&auditPageToken, "page-token", "", "Continue from a previous page")
}
