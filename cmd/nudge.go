package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/brk3/streakmate/internal/apiclient"
	"github.com/brk3/streakmate/internal/config"
	"github.com/brk3/streakmate/internal/nudge"
	"github.com/brk3/streakmate/internal/nudge/resend"
	"github.com/brk3/streakmate/pkg/habit"
	"github.com/spf13/cobra"
)

var (
	nudgeLocal bool
	nudgeDate  string
	nudgeDry   bool
)

// printNotifier writes the nudge to the command output instead of sending it.
type printNotifier struct {
	cmd *cobra.Command
}

func (p printNotifier) SendNudge(_ context.Context, to string, habits []string, day habit.Date) error {
	fmt.Fprintf(p.cmd.OutOrStdout(), "Would nudge %s about %d habit(s) open on %s:\n", to, len(habits), day)
	for _, h := range habits {
		fmt.Fprintf(p.cmd.OutOrStdout(), "  - %s\n", h)
	}
	return nil
}

var nudgeCmd = &cobra.Command{
	Use:   "nudge",
	Short: "Email a reminder about habits not yet marked today",
	Long: `The "nudge" command is meant to run from cron. It lists today's scheduled
habits that have no mark yet and emails them through Resend. With --local it
reads the database directly for nudge.user_id instead of calling the API.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("error loading config file: %w", err)
		}
		today := habit.DateOf(time.Now())
		if nudgeDate != "" {
			if today, err = habit.ParseDate(nudgeDate); err != nil {
				return err
			}
		}

		var n nudge.Notifier = printNotifier{cmd: cmd}
		if !nudgeDry {
			if cfg.Nudge.ResendAPIKey == "" {
				return fmt.Errorf("nudge.resend_api_key (or HABITS_RESEND_API_KEY) is not set")
			}
			n = resend.New(cfg.Nudge.ResendAPIKey, cfg.Nudge.From)
		}

		var q nudge.Querier = apiclient.New(cfg.APIBaseURL, cfg.AuthToken)
		if nudgeLocal {
			if cfg.Nudge.UserID == "" {
				return fmt.Errorf("nudge.user_id (or HABITS_NUDGE_USER) is required with --local")
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			q = nudge.NewStoreQuerier(st, cfg.Nudge.UserID)
		}

		due, err := nudge.Run(cmd.Context(), q, n, cfg.Nudge.Email, today)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to nudge about")
		}
		return nil
	},
}

func init() {
	nudgeCmd.Flags().BoolVar(&nudgeLocal, "local", false, "read the database directly")
	nudgeCmd.Flags().StringVar(&nudgeDate, "date", "", "day to check, YYYY-MM-DD (default today)")
	nudgeCmd.Flags().BoolVar(&nudgeDry, "dry-run", false, "print the nudge instead of emailing it")
	rootCmd.AddCommand(nudgeCmd)
}
