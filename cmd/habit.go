package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/brk3/streakmate/internal/apiclient"
	"github.com/brk3/streakmate/internal/server"
	"github.com/brk3/streakmate/pkg/habit"
	"github.com/spf13/cobra"
)

var (
	habitType        string
	habitFrequency   string
	habitDays        []int
	habitTrigger     string
	habitDescription string
	habitShared      bool
	listArchived     bool
	undoArchive      bool
	unshare          bool
)

var habitCmd = &cobra.Command{
	Use:   "habit",
	Short: "Manage habits",
}

var habitAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a habit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		req := server.CreateHabitRequest{
			Name:                args[0],
			Description:         habitDescription,
			Type:                habitType,
			Frequency:           habitFrequency,
			ActiveDays:          habitDays,
			IsSharedWithPartner: habitShared,
		}
		if habitTrigger != "" {
			req.TriggerTime = &habitTrigger
		}
		h, err := c.CreateHabit(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s habit %q (%s)\n", strings.ToLower(string(h.Type)), h.Name, h.ID)
		return nil
	},
}

var habitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List habits",
	Long:  `The "list" command lets you list your tracked habits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		var hs []habit.Habit
		if listArchived {
			hs, err = c.ListAllHabits(cmd.Context())
		} else {
			hs, err = c.ListHabits(cmd.Context())
		}
		if err != nil {
			return err
		}
		printHabits(cmd.OutOrStdout(), hs)
		return nil
	},
}

var habitArchiveCmd = &cobra.Command{
	Use:   "archive <habit>",
	Short: "Archive a habit, or restore it with --undo",
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
		if h, err = c.ArchiveHabit(cmd.Context(), h.ID, !undoArchive); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s archived: %t\n", h.Name, h.IsArchived)
		return nil
	},
}

var habitShareCmd = &cobra.Command{
	Use:   "share <habit>",
	Short: "Share a habit with your partner, or stop with --off",
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
		if h, err = c.ShareHabit(cmd.Context(), h.ID, !unshare); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s shared: %t\n", h.Name, h.IsSharedWithPartner)
		return nil
	},
}

var habitDeleteCmd = &cobra.Command{
	Use:   "delete <habit>",
	Short: "Delete a habit with its history and lists",
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
		if err := c.DeleteHabit(cmd.Context(), h.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", h.Name)
		return nil
	},
}

func init() {
	habitAddCmd.Flags().StringVar(&habitType, "type", "build", "build or break")
	habitAddCmd.Flags().StringVar(&habitFrequency, "frequency", "daily", "daily, weekdays, weekends or custom")
	habitAddCmd.Flags().IntSliceVar(&habitDays, "days", nil, "active ISO weekdays for custom frequency (1=Mon..7=Sun)")
	habitAddCmd.Flags().StringVar(&habitTrigger, "trigger", "", "reminder time of day, HH:MM")
	habitAddCmd.Flags().StringVar(&habitDescription, "description", "", "free-form description")
	habitAddCmd.Flags().BoolVar(&habitShared, "shared", false, "share with your partner")
	habitListCmd.Flags().BoolVar(&listArchived, "archived", false, "include archived habits")
	habitArchiveCmd.Flags().BoolVar(&undoArchive, "undo", false, "restore an archived habit")
	habitShareCmd.Flags().BoolVar(&unshare, "off", false, "stop sharing")

	habitCmd.AddCommand(habitAddCmd, habitListCmd, habitArchiveCmd, habitShareCmd, habitDeleteCmd)
	rootCmd.AddCommand(habitCmd)
}

// resolveHabit finds a habit by ID or, failing that, by case-insensitive
// name. Archived habits are included.
func resolveHabit(ctx context.Context, c *apiclient.Client, ref string) (habit.Habit, error) {
	hs, err := c.ListAllHabits(ctx)
	if err != nil {
		return habit.Habit{}, err
	}
	var byName []habit.Habit
	for _, h := range hs {
		if h.ID == ref {
			return h, nil
		}
		if strings.EqualFold(h.Name, ref) {
			byName = append(byName, h)
		}
	}
	switch len(byName) {
	case 0:
		return habit.Habit{}, fmt.Errorf("no habit named %q", ref)
	case 1:
		return byName[0], nil
	}
	return habit.Habit{}, fmt.Errorf("%d habits are named %q, use the ID", len(byName), ref)
}

func printHabits(w io.Writer, hs []habit.Habit) {
	if len(hs) == 0 {
		fmt.Fprintln(w, "No habits yet")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTREAK\tBEST\tFLAGS")
	for _, h := range hs {
		var flags []string
		if h.IsSharedWithPartner {
			flags = append(flags, "shared")
		}
		if h.IsArchived {
			flags = append(flags, "archived")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", h.ID, h.Name, h.Type,
			h.CurrentStreak, h.LongestStreak, strings.Join(flags, ","))
	}
	_ = tw.Flush()
}
