// Package reservations creates and cancels room bookings. A booking is
// confirmed only when every grid point it spans is available at commit time;
// otherwise it is queued as waitlisted.
package reservations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haochenhowardyang/club-reservation-service/internal/availability"
	"github.com/haochenhowardyang/club-reservation-service/internal/bookingrules"
	"github.com/haochenhowardyang/club-reservation-service/internal/db"
	"github.com/haochenhowardyang/club-reservation-service/internal/identity"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
	"github.com/haochenhowardyang/club-reservation-service/internal/notify"
	"github.com/haochenhowardyang/club-reservation-service/internal/timegrid"
)

// GamePromoter seats the next waiting poker player inside an open
// transaction. The waitlist machine implements it.
type GamePromoter interface {
	PromoteNextTx(ctx context.Context, txdb *db.DB, gameID int64) (*models.Reservation, error)
}

// PromotionHook observes promotions. It runs after commit, exactly once per
// cancellation of a confirmed reservation that supports promotion, with
// whatever was promoted (possibly nothing).
type PromotionHook func(ctx context.Context, cancelled models.Reservation, promoted []models.Reservation)

type Options struct {
	Directory     identity.Directory
	StrikeLimit   int
	Games         GamePromoter
	OnPromote     PromotionHook
	Notifier      notify.Dispatcher
	NotifyTimeout time.Duration
}

type Manager struct {
	db        *db.DB
	grid      *timegrid.Grid
	validator *bookingrules.Validator
	opts      Options
}

func NewManager(database *db.DB, grid *timegrid.Grid, validator *bookingrules.Validator, opts Options) *Manager {
	return &Manager{db: database, grid: grid, validator: validator, opts: opts}
}

type CreateRequest struct {
	UserID    string
	Type      models.ResourceType
	Date      time.Time
	Start     timegrid.TimeOfDay
	End       timegrid.TimeOfDay
	PartySize int
	Notes     string
}

// Create books a bar or mahjong slot. Poker seats are only ever created by
// the waitlist.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (models.Reservation, error) {
	if req.Type == models.ResourcePoker {
		return models.Reservation{}, models.NewValidationError(models.ReasonResourceType, "poker seats are booked through the game waitlist")
	}
	if err := m.validator.ValidateCreate(req.Date, req.Start, req.End, req.Type, req.PartySize); err != nil {
		return models.Reservation{}, err
	}
	userID, err := identity.CheckEligible(ctx, m.opts.Directory, req.UserID, m.opts.StrikeLimit)
	if err != nil {
		return models.Reservation{}, err
	}
	req.UserID = userID

	date := m.grid.Date(req.Date)
	logger := log.Ctx(ctx).With().
		Str("component", "reservations").
		Str("user_id", req.UserID).
		Str("resource", string(req.Type)).
		Str("date", date.Format(timegrid.DateLayout)).
		Str("start", req.Start.String()).
		Str("end", req.End.String()).
		Logger()

	var (
		res     models.Reservation
		blocked timegrid.TimeOfDay
		reason  models.SlotStatus
	)
	err = m.db.RunInTx(ctx, func(txdb *db.DB) error {
		snap, err := availability.LoadSnapshot(ctx, txdb.Queries, m.grid, date)
		if err != nil {
			return err
		}
		status := models.ReservationConfirmed
		var ok bool
		if ok, blocked, reason = snap.SpanAvailable(req.Type, req.Start, req.End, 0); !ok {
			status = models.ReservationWaitlisted
		}
		res, err = txdb.Queries.CreateReservation(ctx, m.createParams(req, date, status))
		return err
	})
	if err != nil && db.IsUniqueViolation(err) {
		// Another confirmed booking won the slot: queue this one instead.
		logger.Warn().Err(err).Msg("Lost confirmation race, queuing as waitlisted")
		err = m.db.RunInTx(ctx, func(txdb *db.DB) error {
			var err error
			res, err = txdb.Queries.CreateReservation(ctx, m.createParams(req, date, models.ReservationWaitlisted))
			return err
		})
	}
	if err != nil {
		return models.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}

	event := logger.Info().Int64("reservation_id", res.ID).Str("status", string(res.Status))
	if res.Status == models.ReservationWaitlisted && reason != "" {
		event.Str("conflict_at", blocked.String()).Str("conflict", string(reason))
	}
	event.Msg("Reservation created")
	return res, nil
}

func (m *Manager) createParams(req CreateRequest, date time.Time, status models.ReservationStatus) db.CreateReservationParams {
	return db.CreateReservationParams{
		UserID:    req.UserID,
		Type:      req.Type,
		Date:      date,
		Start:     req.Start,
		End:       req.End,
		PartySize: req.PartySize,
		Status:    status,
		Notes:     req.Notes,
		Now:       m.grid.Now(),
	}
}

func reservationNotFound(id int64) error {
	return fmt.Errorf("reservation %d: %w", id, models.ErrNotFound)
}

// Cancel cancels a reservation on behalf of its owner or an admin. Cancelling
// a confirmed reservation promotes waiting bookings into the freed time.
func (m *Manager) Cancel(ctx context.Context, id int64, actor models.Actor) (models.Reservation, error) {
	actor, err := m.canonicalActor(actor)
	if err != nil {
		return models.Reservation{}, err
	}

	var (
		cancelled models.Reservation
		promoted  []models.Reservation
		eligible  bool
	)
	err = m.db.RunInTx(ctx, func(txdb *db.DB) error {
		res, err := txdb.Queries.GetReservation(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return reservationNotFound(id)
			}
			return fmt.Errorf("load reservation: %w", err)
		}
		if !actor.IsAdmin && res.UserID != actor.UserID {
			return models.ErrPermissionDenied
		}
		if !res.Status.CanTransition(models.ReservationCancelled) {
			return models.ErrAlreadyCancelled
		}

		now := m.grid.Now()
		ok, err := txdb.Queries.UpdateReservationStatus(ctx, id, res.Status, models.ReservationCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return models.ErrAlreadyCancelled
		}
		wasConfirmed := res.Status == models.ReservationConfirmed
		res.Status = models.ReservationCancelled
		res.UpdatedAt = db.Timestamp(now)
		cancelled = res

		if !wasConfirmed {
			return nil
		}
		switch {
		case res.Type == models.ResourcePoker && res.GameID != nil && m.opts.Games != nil:
			eligible = true
			next, err := m.opts.Games.PromoteNextTx(ctx, txdb, *res.GameID)
			if err != nil {
				return fmt.Errorf("promote next player: %w", err)
			}
			if next != nil {
				promoted = append(promoted, *next)
			}
		case res.Type.SharesRoom():
			eligible = true
			promoted, err = m.promoteSharedTx(ctx, txdb, res)
			if err != nil {
				return fmt.Errorf("promote waitlisted bookings: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return models.Reservation{}, err
	}

	logger := log.Ctx(ctx)
	logger.Info().
		Str("component", "reservations").
		Int64("reservation_id", id).
		Str("actor", actor.UserID).
		Int("promoted", len(promoted)).
		Msg("Reservation cancelled")

	if eligible {
		if m.opts.OnPromote != nil {
			m.opts.OnPromote(ctx, cancelled, promoted)
		}
		for _, p := range promoted {
			_ = notify.Send(ctx, m.opts.Notifier, notify.PromotionMessage(p, m.grid.Now()), m.opts.NotifyTimeout)
		}
	}
	return cancelled, nil
}

// promoteSharedTx confirms, oldest first, every waitlisted shared-room
// booking around the freed time whose whole span is now available. Other
// waitlisted bookings do not hold a candidate back.
func (m *Manager) promoteSharedTx(ctx context.Context, txdb *db.DB, freed models.Reservation) ([]models.Reservation, error) {
	shared := []models.ResourceType{models.ResourceBar, models.ResourceMahjong}
	var candidates []models.Reservation
	for _, offset := range []int{-1, 0, 1} {
		day := m.grid.AddDays(freed.Date, offset)
		waiting, err := txdb.Queries.ListWaitlistedReservations(ctx, day, shared)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, waiting...)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	var promoted []models.Reservation
	snapshots := make(map[string]*availability.Snapshot)
	for _, c := range candidates {
		key := c.Date.Format(timegrid.DateLayout)
		snap, ok := snapshots[key]
		if !ok {
			loaded, err := availability.LoadSnapshot(ctx, txdb.Queries, m.grid, c.Date)
			if err != nil {
				return nil, err
			}
			snap = loaded.ConfirmedOnly()
			snapshots[key] = snap
		}
		if fits, _, _ := snap.SpanAvailable(c.Type, c.Start, c.End, c.ID); !fits {
			continue
		}

		now := m.grid.Now()
		ok, err := txdb.Queries.UpdateReservationStatus(ctx, c.ID, models.ReservationWaitlisted, models.ReservationConfirmed, now)
		if err != nil {
			if db.IsUniqueViolation(err) {
				continue
			}
			return nil, err
		}
		if !ok {
			continue
		}
		c.Status = models.ReservationConfirmed
		c.UpdatedAt = db.Timestamp(now)
		promoted = append(promoted, c)
		// Promotion changes occupancy for every neighbouring date.
		snapshots = make(map[string]*availability.Snapshot)
	}
	return promoted, nil
}

// Get returns a reservation visible to the actor.
func (m *Manager) Get(ctx context.Context, id int64, actor models.Actor) (models.Reservation, error) {
	actor, err := m.canonicalActor(actor)
	if err != nil {
		return models.Reservation{}, err
	}
	res, err := m.db.Queries.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reservation{}, reservationNotFound(id)
		}
		return models.Reservation{}, fmt.Errorf("load reservation: %w", err)
	}
	if !actor.IsAdmin && res.UserID != actor.UserID {
		return models.Reservation{}, models.ErrPermissionDenied
	}
	return res, nil
}

// canonicalActor rewrites a member actor's id to its stored form so the
// ownership check compares like with like.
func (m *Manager) canonicalActor(actor models.Actor) (models.Actor, error) {
	if actor.IsAdmin && actor.UserID == "" {
		return actor, nil
	}
	id, err := identity.Canonical(m.opts.Directory, actor.UserID)
	if err != nil {
		return models.Actor{}, err
	}
	actor.UserID = id
	return actor, nil
}

// ListForUser returns the user's reservations from today onward.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]models.Reservation, error) {
	userID, err := identity.Canonical(m.opts.Directory, userID)
	if err != nil {
		return nil, err
	}
	return m.db.Queries.ListReservationsForUser(ctx, userID, m.grid.Today())
}

type BlockRequest struct {
	Type   models.ResourceType
	Date   time.Time
	Start  timegrid.TimeOfDay
	End    timegrid.TimeOfDay
	Reason string
}

// Block records an admin-imposed unavailable window. Existing bookings are
// left in place.
func (m *Manager) Block(ctx context.Context, req BlockRequest) (models.BlockedSlot, error) {
	if !req.Type.SharesRoom() {
		return models.BlockedSlot{}, models.NewValidationError(models.ReasonResourceType, "only bar and mahjong can be blocked")
	}
	if req.End <= req.Start {
		return models.BlockedSlot{}, models.NewValidationError(models.ReasonInvalidRange, "end %s must be after start %s", req.End, req.Start)
	}
	if !req.Start.OnGrid() || !req.End.OnGrid() {
		return models.BlockedSlot{}, models.NewValidationError(models.ReasonOffGrid, "times must fall on %d-minute boundaries", timegrid.SlotMinutes)
	}
	block, err := m.db.Queries.CreateBlockedSlot(ctx, db.CreateBlockedSlotParams{
		Type:   req.Type,
		Date:   m.grid.Date(req.Date),
		Start:  req.Start,
		End:    req.End,
		Reason: req.Reason,
	})
	if err != nil {
		return models.BlockedSlot{}, err
	}
	log.Ctx(ctx).Info().
		Str("component", "reservations").
		Int64("block_id", block.ID).
		Str("resource", string(req.Type)).
		Str("date", block.Date.Format(timegrid.DateLayout)).
		Msg("Slot blocked")
	return block, nil
}

func (m *Manager) Unblock(ctx context.Context, id int64) error {
	n, err := m.db.Queries.DeleteBlockedSlot(ctx, id)
	if err != nil {
		return fmt.Errorf("delete blocked slot: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("blocked slot %d: %w", id, models.ErrNotFound)
	}
	return nil
}
