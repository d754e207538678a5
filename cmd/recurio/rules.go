package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"recurio/internal/service"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the recurrence rules collection",
	}
	cmd.PersistentFlags().String("session", "", "Use the credential bound to this session id")

	cmd.AddCommand(rulesAttachCmd())
	cmd.AddCommand(rulesClearCmd())

	return cmd
}

func rulesAttachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach [task-page-id]",
		Short: "Attach or replace the rule of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, _ := cmd.Flags().GetString("session")
			rule, err := ruleFromFlags(cmd)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.cliStore(cmd.Context(), sid)
			if err != nil {
				return err
			}
			days := make([]string, 0, len(rule.ByWeekday))
			for _, d := range rule.ByWeekday {
				days = append(days, string(d))
			}
			res, err := service.NewRuleService(st).Attach(cmd.Context(), service.RuleInput{
				TaskPageID: args[0],
				Rule:       string(rule.Frequency),
				ByDay:      days,
				Interval:   rule.Interval,
				Time:       rule.TimeOfDay,
				Timezone:   rule.Timezone,
				Custom:     rule.CustomOverride,
			})
			if err != nil {
				return err
			}
			return render(cmd, res, func(w io.Writer) error {
				verb := "updated"
				if res.Created {
					verb = "created"
				}
				_, err := fmt.Fprintf(w, "rule %s %s for %q (%s every %d)\n",
					res.RulePageID, verb, res.Rule.Title, res.Rule.Frequency, res.Rule.Interval)
				return err
			})
		},
	}
	addRuleFlags(cmd)
	return cmd
}

func rulesClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Archive every row of the rules collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, _ := cmd.Flags().GetString("session")

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.cliStore(cmd.Context(), sid)
			if err != nil {
				return err
			}
			res, err := service.NewRuleService(st).Clear(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "archived %d of %d rules\n", res.Archived, res.Total)
				return err
			})
		},
	}
}
