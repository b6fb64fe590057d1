package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/haochenhowardyang/club-reservation-service/internal/app"
	"github.com/haochenhowardyang/club-reservation-service/internal/config"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

var (
	configPath string
	verbose    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clubctl",
		Short:         "Operate the club reservation engine: bookings, poker waitlists and maintenance sweeps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
		},
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newAvailabilityCmd())
	root.AddCommand(newReservationCmd())
	root.AddCommand(newGameCmd())
	root.AddCommand(newWaitlistCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newUserCmd())
	return root
}

// withEngine loads configuration, builds the engine and runs fn with a
// logger-carrying context. The engine is closed afterwards.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *app.Engine) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx := log.Logger.WithContext(cmd.Context())
	e, err := app.New(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close engine")
		}
	}()
	return fn(ctx, e)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError(models.ReasonIdentifier, "invalid id %q", raw)
	}
	return id, nil
}

func parseRange(startRaw, endRaw string) (timegrid.TimeOfDay, timegrid.TimeOfDay, error) {
	start, err := timegrid.ParseTimeOfDay(startRaw)
	if err != nil {
		return 0, 0, models.NewValidationError(models.ReasonInvalidRange, "start: %v", err)
	}
	end, err := timegrid.ParseTimeOfDay(endRaw)
	if err != nil {
		return 0, 0, models.NewValidationError(models.ReasonInvalidRange, "end: %v", err)
	}
	return start, end, nil
}

func parseDate(e *app.Engine, raw string) (time.Time, error) {
	date, err := e.Grid.ParseDate(raw)
	if err != nil {
		return time.Time{}, models.NewValidationError(models.ReasonInvalidRange, "%v", err)
	}
	return date, nil
}
