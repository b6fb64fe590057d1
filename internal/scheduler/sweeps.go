package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	AutoCloseJobName  = "poker_auto_close"
	TokenSweepJobName = "token_expiry_sweep"

	sweepTimeout = 2 * time.Minute
)

// Sweeper is the batch side of the waitlist machine.
type Sweeper interface {
	AutoCloseExpiredGames(ctx context.Context) (int, error)
	ExpireDueTokens(ctx context.Context) (int64, error)
}

type SweepSchedule struct {
	AutoCloseCron  string
	TokenSweepCron string
}

// RunSweeps closes finished games, then expires overdue tokens. Both steps
// are idempotent, so a run that overlaps a request-path sweep is harmless.
func RunSweeps(ctx context.Context, sweeper Sweeper) error {
	if _, err := sweeper.AutoCloseExpiredGames(ctx); err != nil {
		return fmt.Errorf("auto-close games: %w", err)
	}
	if _, err := sweeper.ExpireDueTokens(ctx); err != nil {
		return fmt.Errorf("expire due tokens: %w", err)
	}
	return nil
}

// RegisterSweepJobs adds the auto-close and token-expiry jobs. Each run gets a
// fresh context bounded by a timeout so a stuck database cannot pile runs up.
func RegisterSweepJobs(svc *Service, sweeper Sweeper, schedule SweepSchedule) error {
	if svc == nil {
		return ErrNotInitialized
	}
	if sweeper == nil {
		return fmt.Errorf("sweep jobs require a sweeper")
	}

	autoClose := func() {
		ctx, cancel := sweepContext(AutoCloseJobName)
		defer cancel()
		closed, err := sweeper.AutoCloseExpiredGames(ctx)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Auto-close sweep failed")
			return
		}
		if closed > 0 {
			log.Ctx(ctx).Info().Int("closed", closed).Msg("Auto-close sweep finished")
		}
	}
	if _, err := svc.AddJob(AutoCloseJobName, schedule.AutoCloseCron, autoClose); err != nil {
		return fmt.Errorf("register %s: %w", AutoCloseJobName, err)
	}

	tokenSweep := func() {
		ctx, cancel := sweepContext(TokenSweepJobName)
		defer cancel()
		if _, err := sweeper.ExpireDueTokens(ctx); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Token expiry sweep failed")
		}
	}
	if _, err := svc.AddJob(TokenSweepJobName, schedule.TokenSweepCron, tokenSweep); err != nil {
		return fmt.Errorf("register %s: %w", TokenSweepJobName, err)
	}
	return nil
}

func sweepContext(job string) (context.Context, context.CancelFunc) {
	logger := log.With().Str("component", "scheduler").Str("job_name", job).Logger()
	ctx := logger.WithContext(context.Background())
	return context.WithTimeout(ctx, sweepTimeout)
}
