package cmd

import (
	"fmt"
	"time"

	"github.com/brk3/streakmate/pkg/habit"
	"github.com/spf13/cobra"
)

var (
	markDate string
	markNote string
)

var markCmd = &cobra.Command{
	Use:   "mark <habit> <success|failure|skipped|pending>",
	Short: "Mark a day for a habit",
	Long: `The "mark" command records the outcome of a day. It defaults to today;
use --date to correct an earlier day, and "pending" to undo a mark.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := habit.ParseStatus(args[1])
		if err != nil {
			return err
		}
		day := habit.DateOf(time.Now())
		if markDate != "" {
			if day, err = habit.ParseDate(markDate); err != nil {
				return err
			}
		}
		var note *string
		if cmd.Flags().Changed("note") {
			note = &markNote
		}

		c, _, err := newClient()
		if err != nil {
			return err
		}
		h, err := resolveHabit(cmd.Context(), c, args[0])
		if err != nil {
			return err
		}
		resp, err := c.MarkStatus(cmd.Context(), h.ID, day, status, note)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s (streak %d, best %d)\n",
			resp.Habit.Name, resp.Log.Date, resp.Log.Status, resp.Habit.CurrentStreak, resp.Habit.LongestStreak)
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <habit>",
	Short: "Show streaks and totals for a habit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		h, err := resolveHabit(cmd.Context(), c, args[0])
		if err != nil {
			return err
		}
		s, err := c.GetHabitSummary(cmd.Context(), h.ID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n", s.Name)
		fmt.Fprintf(out, "  current streak: %d\n", s.CurrentStreak)
		fmt.Fprintf(out, "  longest streak: %d\n", s.LongestStreak)
		fmt.Fprintf(out, "  successes:      %d\n", s.TotalSuccessDays)
		fmt.Fprintf(out, "  failures:       %d\n", s.TotalFailureDays)
		fmt.Fprintf(out, "  success rate:   %.0f%%\n", s.SuccessRate*100)
		fmt.Fprintf(out, "  this month:     %d\n", s.ThisMonth)
		if s.FirstLogged != "" {
			fmt.Fprintf(out, "  first logged:   %s\n", s.FirstLogged)
		}
		return nil
	},
}

func init() {
	markCmd.Flags().StringVar(&markDate, "date", "", "day to mark, YYYY-MM-DD (default today)")
	markCmd.Flags().StringVar(&markNote, "note", "", "note for the day")
	rootCmd.AddCommand(markCmd, summaryCmd)
}
