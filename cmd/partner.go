package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var partnerCmd = &cobra.Command{
	Use:   "partner",
	Short: "Manage your accountability partnership",
}

var partnerInviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Create an invite code for a partner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.CreateInvite(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Invite code: %s\n", p.InviteCode)
		if p.InviteExpiresAt != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Expires: %s\n", p.InviteExpiresAt.Local().Format(time.RFC1123))
		}
		return nil
	},
}

var partnerAcceptCmd = &cobra.Command{
	Use:   "accept <code>",
	Short: "Accept a partner's invite code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.AcceptInvite(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "You are now partnered with %s (%s)\n", p.OwnerID, p.ID)
		return nil
	},
}

var partnerRevokeCmd = &cobra.Command{
	Use:   "revoke <partnership-id>",
	Short: "End a partnership or cancel an invite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.RevokePartnership(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Partnership %s is %s\n", p.ID, p.Status)
		return nil
	},
}

var partnerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your partnerships and invites",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		ps, err := c.ListPartnerships(cmd.Context())
		if err != nil {
			return err
		}
		if len(ps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No partnerships")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tOWNER\tPARTNER\tCODE")
		for _, p := range ps {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Status, p.OwnerID, p.PartnerID, p.InviteCode)
		}
		return tw.Flush()
	},
}

var partnerViewCmd = &cobra.Command{
	Use:   "view <owner-id>",
	Short: "Show the habits a partner shares with you",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := newClient()
		if err != nil {
			return err
		}
		shared, err := c.PartnerView(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(shared) == 0 {
			fmt.Fprintln(out, "Nothing shared yet")
			return nil
		}
		for _, sh := range shared {
			fmt.Fprintf(out, "%s (%s): streak %d, best %d\n",
				sh.Habit.Name, sh.Habit.Type, sh.Habit.CurrentStreak, sh.Habit.LongestStreak)
			for _, it := range sh.Items {
				fmt.Fprintf(out, "  - [%s] %s\n", it.Type, it.Content)
			}
		}
		return nil
	},
}

func init() {
	partnerCmd.AddCommand(partnerInviteCmd, partnerAcceptCmd, partnerRevokeCmd, partnerListCmd, partnerViewCmd)
	rootCmd.AddCommand(partnerCmd)
}
