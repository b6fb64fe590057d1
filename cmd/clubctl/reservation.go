package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haochenhowardyang/club-reservation-service/internal/app"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/reservations"
)

func newReservationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reservation",
		Aliases: []string{"res"},
		Short:   "Create, cancel and list bar and mahjong reservations",
	}
	cmd.AddCommand(newReservationCreateCmd())
	cmd.AddCommand(newReservationCancelCmd())
	cmd.AddCommand(newReservationListCmd())
	cmd.AddCommand(newReservationBlockCmd())
	cmd.AddCommand(newReservationUnblockCmd())
	return cmd
}

func newReservationCreateCmd() *cobra.Command {
	var user, resource, date, start, end, notes string
	var party int

	c := &cobra.Command{
		Use:   "create",
		Short: "Book a slot; the booking is waitlisted when the span is taken",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				rt, err := models.ParseResourceType(resource)
				if err != nil {
					return err
				}
				day, err := parseDate(e, date)
				if err != nil {
					return err
				}
				from, to, err := parseRange(start, end)
				if err != nil {
					return err
				}
				userID, err := e.Users.Normalize(user)
				if err != nil {
					return err
				}
				res, err := e.Reservations.Create(ctx, reservations.CreateRequest{
					UserID:    userID,
					Type:      rt,
					Date:      day,
					Start:     from,
					End:       to,
					PartySize: party,
					Notes:     notes,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}

	c.Flags().StringVar(&user, "user", "", "member phone number or email")
	c.Flags().StringVar(&resource, "resource", "", "bar or mahjong")
	c.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	c.Flags().StringVar(&start, "start", "", "start time (HH:MM)")
	c.Flags().StringVar(&end, "end", "", "end time (HH:MM, past 24:00 for overnight)")
	c.Flags().IntVar(&party, "party", 1, "party size")
	c.Flags().StringVar(&notes, "notes", "", "free-form notes")
	for _, name := range []string{"user", "resource", "date", "start", "end"} {
		_ = c.MarkFlagRequired(name)
	}
	return c
}

func newReservationCancelCmd() *cobra.Command {
	var user string

	c := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a reservation and promote whoever was waiting for its slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				actor := models.Actor{IsAdmin: true}
				if user != "" {
					if actor.UserID, err = e.Users.Normalize(user); err != nil {
						return err
					}
					actor.IsAdmin = false
				}
				res, err := e.Reservations.Cancel(ctx, id, actor)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}

	c.Flags().StringVar(&user, "as", "", "cancel on behalf of this member instead of as admin")
	return c
}

func newReservationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <user>",
		Short: "List a member's reservations from today onward",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				userID, err := e.Users.Normalize(args[0])
				if err != nil {
					return err
				}
				list, err := e.Reservations.ListForUser(ctx, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, list)
			})
		},
	}
}

func newReservationBlockCmd() *cobra.Command {
	var resource, date, start, end, reason string

	c := &cobra.Command{
		Use:   "block",
		Short: "Block a time range for bar or mahjong",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				rt, err := models.ParseResourceType(resource)
				if err != nil {
					return err
				}
				day, err := parseDate(e, date)
				if err != nil {
					return err
				}
				from, to, err := parseRange(start, end)
				if err != nil {
					return err
				}
				slot, err := e.Reservations.Block(ctx, reservations.BlockRequest{
					Type:   rt,
					Date:   day,
					Start:  from,
					End:    to,
					Reason: reason,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, slot)
			})
		},
	}

	c.Flags().StringVar(&resource, "resource", "", "bar or mahjong")
	c.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD)")
	c.Flags().StringVar(&start, "start", "", "start time (HH:MM)")
	c.Flags().StringVar(&end, "end", "", "end time (HH:MM)")
	c.Flags().StringVar(&reason, "reason", "", "shown to admins")
	for _, name := range []string{"resource", "date", "start", "end"} {
		_ = c.MarkFlagRequired(name)
	}
	return c
}

func newReservationUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <id>",
		Short: "Remove a blocked range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				if err := e.Reservations.Unblock(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unblocked %d\n", id)
				return nil
			})
		},
	}
}
