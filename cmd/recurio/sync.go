package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recurio/internal/model"
	"recurio/internal/recurrence"
	"recurio/internal/service"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Spawn the next occurrence of every completed recurring task once",
		RunE: func(cmd *cobra.Command, args []string) error {
			sid, _ := cmd.Flags().GetString("session")
			db, _ := cmd.Flags().GetString("db")

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.cliStore(cmd.Context(), sid)
			if err != nil {
				return err
			}
			report, err := service.NewSyncService(st, service.NewRuleService(st), a.runs).Run(cmd.Context(), service.SyncOptions{
				CollectionFilter: db,
				Trigger:          "cli",
			})
			if err != nil {
				return err
			}
			return render(cmd, report, func(w io.Writer) error { return writeReport(w, report) })
		},
	}

	cmd.Flags().String("db", "", "Only spawn tasks living in this collection")
	cmd.Flags().String("session", "", "Use the credential bound to this session id")

	return cmd
}

func writeReport(w io.Writer, report *service.SyncReport) error {
	fmt.Fprintf(w, "processed %d, created %d", report.Processed, report.Created)
	if report.Truncated {
		fmt.Fprint(w, " (cut short)")
	}
	if report.Note != "" {
		fmt.Fprintf(w, " [%s]", report.Note)
	}
	fmt.Fprintln(w)
	for _, d := range report.Details {
		line := fmt.Sprintf("  %-24s %s", d.Note, d.RuleID)
		if d.Title != "" {
			line += "  " + d.Title
		}
		if d.Next != "" {
			line += "  next " + d.Next
		}
		if d.ReplacementRuleID != "" {
			line += "  replacement " + d.ReplacementRuleID
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

type nextResult struct {
	Anchor string     `json:"anchor" yaml:"anchor"`
	Next   string     `json:"next" yaml:"next"`
	Rule   model.Rule `json:"rule" yaml:"rule"`
}

func nextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Compute the occurrence following an anchor date",
		Example: `  recurio next --anchor 2024-06-10 --freq weekly --byday MO,WE --time 09:00
  recurio next --anchor 2024-01-31 --custom "FREQ=MONTHLY;INTERVAL=1"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			anchorRaw, _ := flags.GetString("anchor")
			nowRaw, _ := flags.GetString("now")

			rule, err := ruleFromFlags(cmd)
			if err != nil {
				return err
			}

			var anchor recurrence.Date
			if anchorRaw != "" {
				if anchor, err = recurrence.ParseDate(anchorRaw); err != nil {
					return err
				}
			}
			now := time.Now()
			if nowRaw != "" {
				if now, err = time.Parse(time.RFC3339, nowRaw); err != nil {
					return fmt.Errorf("parse --now: %w", err)
				}
			}

			next := recurrence.ComputeNext(anchor, rule, now)
			res := nextResult{Anchor: anchorRaw, Next: next.String(), Rule: recurrence.Effective(rule)}
			return render(cmd, res, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, res.Next)
				return err
			})
		},
	}

	cmd.Flags().String("anchor", "", "Anchor date (YYYY-MM-DD or RFC 3339); empty means now")
	cmd.Flags().String("now", "", "Reference instant (RFC 3339); empty means the current time")
	addRuleFlags(cmd)

	return cmd
}

func addRuleFlags(cmd *cobra.Command) {
	cmd.Flags().String("freq", "weekly", "Frequency (daily, weekly, monthly, yearly, custom)")
	cmd.Flags().Int("interval", 1, "Repeat every N units")
	cmd.Flags().StringSlice("byday", nil, "Weekday codes for weekly rules (MO,TU,...)")
	cmd.Flags().String("time", "", "Time of day HH:MM")
	cmd.Flags().String("tz", "", "Timezone label stored with the rule")
	cmd.Flags().String("custom", "", "Override string, e.g. FREQ=WEEKLY;BYDAY=MO,FR")
}

func ruleFromFlags(cmd *cobra.Command) (model.Rule, error) {
	flags := cmd.Flags()
	freqRaw, _ := flags.GetString("freq")
	interval, _ := flags.GetInt("interval")
	byday, _ := flags.GetStringSlice("byday")
	tod, _ := flags.GetString("time")
	tz, _ := flags.GetString("tz")
	custom, _ := flags.GetString("custom")

	freq, ok := model.ParseFrequency(freqRaw)
	if !ok {
		return model.Rule{}, fmt.Errorf("%w: %q", service.ErrInvalidRuleFrequency, freqRaw)
	}
	days := make([]model.Weekday, 0, len(byday))
	for _, d := range byday {
		days = append(days, model.Weekday(strings.ToUpper(strings.TrimSpace(d))))
	}
	return model.Rule{
		Frequency:      freq,
		Interval:       interval,
		ByWeekday:      days,
		TimeOfDay:      tod,
		Timezone:       tz,
		CustomOverride: custom,
		Active:         true,
	}.Normalize(), nil
}
