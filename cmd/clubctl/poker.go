package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haochenhowardyang/club-reservation-service/internal/app"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
	"github.com/haochenhowardyang/club-reservation-service/internal/waitlist"
)

func newGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Manage poker games",
	}
	cmd.AddCommand(newGameCreateCmd())
	cmd.AddCommand(newGameListCmd())
	cmd.AddCommand(newGameCloseCmd())
	cmd.AddCommand(newGameDeleteCmd())
	return cmd
}

func newGameCreateCmd() *cobra.Command {
	var date, start, blinds, notes string

	c := &cobra.Command{
		Use:   "create",
		Short: "Open a poker game for waitlist sign-ups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				day, err := parseDate(e, date)
				if err != nil {
					return err
				}
				at, err := timegrid.ParseTimeOfDay(start)
				if err != nil {
					return models.NewValidationError(models.ReasonOffGrid, "%v", err)
				}
				game, err := e.Waitlist.CreateGame(ctx, waitlist.CreateGameRequest{
					Date:       day,
					Start:      at,
					BlindLevel: blinds,
					Notes:      notes,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, game)
			})
		},
	}

	c.Flags().StringVar(&date, "date", "", "game date (YYYY-MM-DD)")
	c.Flags().StringVar(&start, "start", "", "start time (HH:MM)")
	c.Flags().StringVar(&blinds, "blinds", "", "blind level, e.g. 1/2")
	c.Flags().StringVar(&notes, "notes", "", "free-form notes")
	_ = c.MarkFlagRequired("date")
	_ = c.MarkFlagRequired("start")
	return c
}

func newGameListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List open games",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				games, err := e.Waitlist.ListOpenGames(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, games)
			})
		},
	}
}

func newGameCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <game-id>",
		Short: "Close a game and expire its outstanding tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				if err := e.Waitlist.CloseGame(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "closed game %d\n", id)
				return nil
			})
		},
	}
}

func newGameDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <game-id>",
		Short: "Delete a game, its waitlist and tokens; seats are cancelled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				if err := e.Waitlist.DeleteGame(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted game %d\n", id)
				return nil
			})
		},
	}
}

func newWaitlistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waitlist",
		Short: "Manage poker waitlists",
	}
	cmd.AddCommand(newWaitlistJoinCmd())
	cmd.AddCommand(newWaitlistConfirmCmd())
	cmd.AddCommand(newWaitlistListCmd())
	cmd.AddCommand(newWaitlistRemoveCmd())
	return cmd
}

// gameUserCmd builds the "<game-id> <user>" commands that share argument
// handling.
func gameUserCmd(use, short string, run func(ctx context.Context, cmd *cobra.Command, e *app.Engine, gameID int64, userID string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <game-id> <user>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				userID, err := e.Users.Normalize(args[1])
				if err != nil {
					return err
				}
				return run(ctx, cmd, e, gameID, userID)
			})
		},
	}
}

func newWaitlistJoinCmd() *cobra.Command {
	return gameUserCmd("join", "Append a member to a game's waitlist",
		func(ctx context.Context, cmd *cobra.Command, e *app.Engine, gameID int64, userID string) error {
			result, err := e.Waitlist.Join(ctx, gameID, userID)
			if err != nil {
				return err
			}
			if result.AlreadyOnWaitlist {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s is already on the waitlist\n", userID)
			}
			return printJSON(cmd, result.Entry)
		})
}

func newWaitlistConfirmCmd() *cobra.Command {
	return gameUserCmd("confirm", "Seat a waiting member",
		func(ctx context.Context, cmd *cobra.Command, e *app.Engine, gameID int64, userID string) error {
			result, err := e.Waitlist.Confirm(ctx, gameID, userID)
			if err != nil {
				return err
			}
			return printJSON(cmd, result.Reservation)
		})
}

func newWaitlistRemoveCmd() *cobra.Command {
	return gameUserCmd("remove", "Delete a member's waitlist entry",
		func(ctx context.Context, cmd *cobra.Command, e *app.Engine, gameID int64, userID string) error {
			if err := e.Waitlist.RemoveEntry(ctx, gameID, userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s from game %d\n", userID, gameID)
			return nil
		})
}

func newWaitlistListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <game-id>",
		Short: "List a game's waitlist in position order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				entries, err := e.Waitlist.ListEntries(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, entries)
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue, send and redeem single-use response tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	cmd.AddCommand(newTokenConsumeCmd())
	cmd.AddCommand(newTokenListCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var purpose string
	var send bool

	c := gameUserCmd("issue", "Issue a token, optionally delivering it to the member",
		func(ctx context.Context, cmd *cobra.Command, e *app.Engine, gameID int64, userID string) error {
			var (
				tok models.NotificationToken
				err error
			)
			p := models.TokenPurpose(purpose)
			if send {
				tok, err = e.Waitlist.Invite(ctx, gameID, userID, p)
			} else {
				tok, err = e.Waitlist.IssueToken(ctx, gameID, userID, p, 0)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, tok)
		})
	c.Flags().StringVar(&purpose, "purpose", string(models.PurposeJoinInvite), "join_invite or confirm_reservation")
	c.Flags().BoolVar(&send, "send", false, "deliver the token through the configured notifiers")
	return c
}

func newTokenConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume <token> <confirmed|declined>",
		Short: "Apply a member's response through a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				result, err := e.Waitlist.ConsumeToken(ctx, args[0], models.TokenResponse(args[1]))
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
}

func newTokenListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <game-id>",
		Short: "List every token issued for a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				tokens, err := e.DB.Queries.ListTokensForGame(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, tokens)
			})
		},
	}
}
