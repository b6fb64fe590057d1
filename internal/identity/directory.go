// Package identity is the user-identity collaborator: it answers whether a
// member exists and how many strikes they carry.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/haochenhowardyang/club-reservation-service/internal/cognito"
	"github.com/haochenhowardyang/club-reservation-service/internal/models"
)

// Directory is what the booking and waitlist engines need to know about users.
type Directory interface {
	// Normalize returns the stored form of an identifier.
	Normalize(raw string) (string, error)
	EnsureUserExists(ctx context.Context, id string) (bool, error)
	StrikeCount(ctx context.Context, id string) (int, error)
}

// UserStore is the local users table.
type UserStore interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	UpsertUser(ctx context.Context, u models.User) error
	AddUserStrike(ctx context.Context, id string) (int64, error)
}

// RemoteLookup is a remote member directory such as a Cognito user pool.
type RemoteLookup interface {
	LookupMember(ctx context.Context, username string) (cognito.Member, bool, error)
}

type Options struct {
	// Remote is consulted for users missing locally; found members are
	// provisioned into the local store.
	Remote        RemoteLookup
	DefaultRegion string
	Timeout       time.Duration
}

// Store implements Directory on the local users table.
type Store struct {
	users   UserStore
	remote  RemoteLookup
	region  string
	timeout time.Duration
}

func NewStore(users UserStore, opts Options) *Store {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	region := opts.DefaultRegion
	if region == "" {
		region = cognito.DefaultRegion
	}
	return &Store{users: users, remote: opts.Remote, region: region, timeout: timeout}
}

// NormalizeID turns a phone number or email into the stable user identifier:
// E.164 for phones, lower case for emails.
func NormalizeID(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if cognito.IsPhoneNumber(raw) {
		if phone := cognito.NormalizePhoneIn(raw, region); phone != "" {
			return phone, nil
		}
	}
	if at := strings.Index(raw, "@"); at > 0 && at < len(raw)-1 {
		return strings.ToLower(raw), nil
	}
	return "", models.NewValidationError(models.ReasonIdentifier, "%q is neither a phone number nor an email", raw)
}

func (s *Store) Normalize(raw string) (string, error) {
	return NormalizeID(raw, s.region)
}

// EnsureUserExists reports whether the user is a known member. A failure to
// reach a store is returned as DependencyUnavailable, never as "not found".
func (s *Store) EnsureUserExists(ctx context.Context, raw string) (bool, error) {
	id, err := s.Normalize(raw)
	if err != nil {
		return false, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.users.GetUser(lookupCtx, id)
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, models.Unavailable("identity store", err)
	}

	if s.remote == nil {
		return false, nil
	}
	member, found, err := s.remote.LookupMember(lookupCtx, id)
	if err != nil {
		return false, models.Unavailable("identity pool", err)
	}
	if !found {
		return false, nil
	}

	user := models.User{ID: id, Name: member.Name, Email: member.Email, Phone: member.Phone}
	if cognito.IsPhoneNumber(id) && user.Phone == "" {
		user.Phone = id
	}
	if err := s.users.UpsertUser(lookupCtx, user); err != nil {
		return false, models.Unavailable("identity store", err)
	}
	log.Ctx(ctx).Info().
		Str("component", "identity").
		Str("user_id", id).
		Msg("Provisioned member from remote directory")
	return true, nil
}

func (s *Store) StrikeCount(ctx context.Context, raw string) (int, error) {
	id, err := s.Normalize(raw)
	if err != nil {
		return 0, err
	}
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetUser(lookupCtx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, models.ErrUserNotFound
		}
		return 0, models.Unavailable("identity store", err)
	}
	return user.Strikes, nil
}

// Register adds or refreshes a member in the local store and returns the
// stored record.
func (s *Store) Register(ctx context.Context, u models.User) (models.User, error) {
	id, err := s.Normalize(u.ID)
	if err != nil {
		return models.User{}, err
	}
	u.ID = id
	if u.Phone == "" && cognito.IsPhoneNumber(id) {
		u.Phone = id
	}
	if u.Email == "" && strings.Contains(id, "@") {
		u.Email = id
	}
	if err := s.users.UpsertUser(ctx, u); err != nil {
		return models.User{}, fmt.Errorf("register user %s: %w", id, err)
	}
	return s.users.GetUser(ctx, id)
}

// AddStrike records a no-show or similar infraction.
func (s *Store) AddStrike(ctx context.Context, raw string) error {
	id, err := s.Normalize(raw)
	if err != nil {
		return err
	}
	n, err := s.users.AddUserStrike(ctx, id)
	if err != nil {
		return fmt.Errorf("add strike for %s: %w", id, err)
	}
	if n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// Canonical returns the stored form of id. Without a directory ids are used
// as given.
func Canonical(dir Directory, id string) (string, error) {
	if dir == nil {
		return id, nil
	}
	return dir.Normalize(id)
}

// CheckEligible is the pre-commit hook for bookings and waitlist joins: the
// user must exist and be under the strike limit. It returns the canonical id
// the caller must write with. A limit of zero disables the strike check.
func CheckEligible(ctx context.Context, dir Directory, id string, strikeLimit int) (string, error) {
	if dir == nil {
		return id, nil
	}
	id, err := dir.Normalize(id)
	if err != nil {
		return "", err
	}
	ok, err := dir.EnsureUserExists(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", models.ErrUserNotFound
	}
	if strikeLimit <= 0 {
		return id, nil
	}
	strikes, err := dir.StrikeCount(ctx, id)
	if err != nil {
		return "", err
	}
	if strikes >= strikeLimit {
		return "", fmt.Errorf("%w: %d strikes", models.ErrStrikeLimit, strikes)
	}
	return id, nil
}
