package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haochenhowardyang/club-reservation-service/internal/app"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/scheduler"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the engine runs migrations.
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				version, dirty, err := e.DB.MigrationVersion()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %v)\n", version, dirty)
				return nil
			})
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close finished poker games and expire due tokens once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				return scheduler.RunSweeps(ctx, e.Waitlist)
			})
		},
	}
}

func newAvailabilityCmd() *cobra.Command {
	var date, resource string
	var asJSON bool

	c := &cobra.Command{
		Use:   "availability",
		Short: "Show the status of every grid point for a resource on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, e *app.Engine) error {
				rt, err := models.ParseResourceType(resource)
				if err != nil {
					return err
				}
				day := e.Grid.Today()
				if date != "" {
					if day, err = parseDate(e, date); err != nil {
						return err
					}
				}
				slots, err := e.Resolver.ComputeStatus(ctx, day, rt)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, slots)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "%s %s\n", rt, day.Format(timegrid.DateLayout))
				for _, s := range slots {
					fmt.Fprintf(w, "%s\t%s\n", s.Time, s.Status)
				}
				return w.Flush()
			})
		},
	}

	c.Flags().StringVar(&date, "date", "", "date (YYYY-MM-DD), defaults to today")
	c.Flags().StringVar(&resource, "resource", "", "bar, mahjong or poker")
	c.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = c.MarkFlagRequired("resource")
	return c
}
