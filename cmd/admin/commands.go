package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/BradenHooton/twofactor/internal/models"
	"github.com/spf13/cobra"
)

// store is what the maintenance commands need from the database
type store interface {
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
}

var errNotConfirmed = errors.New("refusing to reset without --yes")

func newRootCmd(open func(ctx context.Context) (store, func(), error)) *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Maintenance commands for the two-factor auth database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newListUsersCmd(open), newResetDBCmd(open))
	return root
}

func newListUsersCmd(open func(ctx context.Context) (store, func(), error)) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list-users",
		Short: "List registered users, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			users, err := st.ListUsers(cmd.Context(), limit, offset)
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			return printUsers(cmd.OutOrStdout(), users)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of users to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of users to skip")
	return cmd
}

func newResetDBCmd(open func(ctx context.Context) (store, func(), error)) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "Delete every user and session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errNotConfirmed
			}

			st, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := st.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset database: %w", err)
			}

			remaining, err := st.CountUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("count users: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Database reset. Users remaining: %d\n", remaining)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm that all data should be deleted")
	return cmd
}

func printUsers(out io.Writer, users []*models.User) error {
	if len(users) == 0 {
		_, err := fmt.Fprintln(out, "No users found.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\t2FA\tCREATED")
	for _, u := range users {
		twoFactor := "off"
		if u.TwoFactorEnabled {
			twoFactor = "on"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, twoFactor, u.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
