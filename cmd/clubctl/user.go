package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haochenhowardyang/club-reservation-service/internal/app"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage club members",
	}
	cmd.AddCommand(newUserAddCmd())
	cmd.AddCommand(newUserStrikeCmd())
	cmd.AddCommand(newUserPurgeCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var name string
	var admin, remote bool

	c := &cobra.Command{
		Use:   "add <phone-or-email>",
		Short: "Register a member locally and optionally in the identity pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				id, err := e.Users.Normalize(args[0])
				if err != nil {
					return err
				}
				if remote {
					if e.Cognito == nil {
						return fmt.Errorf("--pool requires identity.cognito_pool_id: %w", models.ErrValidationFailed)
					}
					if err := e.Cognito.CreateMember(ctx, id); err != nil {
						return models.Unavailable("identity pool", err)
					}
				}
				user, err := e.Users.Register(ctx, models.User{ID: id, Name: name, IsAdmin: admin})
				if err != nil {
					return err
				}
				return printJSON(cmd, user)
			})
		},
	}

	c.Flags().StringVar(&name, "name", "", "display name")
	c.Flags().BoolVar(&admin, "admin", false, "grant admin rights")
	c.Flags().BoolVar(&remote, "pool", false, "also create the member in the Cognito user pool")
	return c
}

func newUserStrikeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strike <user>",
		Short: "Record a no-show against a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				if err := e.Users.AddStrike(ctx, args[0]); err != nil {
					return err
				}
				n, err := e.Users.StrikeCount(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d strike(s), limit %d\n", n, e.Config.Identity.StrikeLimit)
				return nil
			})
		},
	}
}

func newUserPurgeCmd() *cobra.Command {
	var yes bool

	c := &cobra.Command{
		Use:   "purge <user>",
		Short: "Delete a member with their reservations, waitlist entries and tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to purge without --yes: %w", models.ErrValidationFailed)
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				id, err := e.Users.Normalize(args[0])
				if err != nil {
					return err
				}
				counts, err := e.DB.PurgeUser(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %s: %d reservation(s), %d waitlist entr(ies), %d token(s)\n",
					id, counts.Reservations, counts.Entries, counts.Tokens)
				return nil
			})
		},
	}

	c.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return c
}
