package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/rollcall/internal/client"
	"github.com/andresmejia3/rollcall/internal/utils"
	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the users enrolled on the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		c, err := newClient()
		if err != nil {
			return err
		}
		return runUsers(cmd.Context(), c, cmd.OutOrStdout())
	},
}

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's attendance marks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		c, err := newClient()
		if err != nil {
			return err
		}
		return runToday(cmd.Context(), c, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(todayCmd)
}

type reportSource interface {
	Users(ctx context.Context) ([]client.User, error)
	AttendanceToday(ctx context.Context) ([]client.AttendanceRecord, error)
}

func runUsers(ctx context.Context, c reportSource, out io.Writer) error {
	users, err := c.Users(ctx)
	if err != nil {
		utils.ShowError("Failed to list users", err, nil)
		return err
	}

	if len(users) == 0 {
		fmt.Fprintln(out, "No users enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	fmt.Fprintln(w, "--\t----")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\n", u.UserID, u.Name)
	}
	return w.Flush()
}

func runToday(ctx context.Context, c reportSource, out io.Writer) error {
	records, err := c.AttendanceToday(ctx)
	if err != nil {
		utils.ShowError("Failed to fetch today's attendance", err, nil)
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "Nobody marked present today.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDATE\tTIME")
	fmt.Fprintln(w, "--\t----\t----\t----")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.UserID, r.Name, r.Date, r.Time)
	}
	return w.Flush()
}
