// Package runner drives projection batches: session handling, persistence and delivery.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rewired-gh/kickbalance/internal/kickbase"
	"github.com/rewired-gh/kickbalance/internal/logger"
	"github.com/rewired-gh/kickbalance/internal/models"
)

// ErrUnknownLeague is returned for a league the account is not a member of
// or that is excluded by configuration.
var ErrUnknownLeague = errors.New("unknown league")

// ErrBusy is returned when a run is requested while another one is in progress.
var ErrBusy = errors.New("projection run already in progress")

// Authenticator opens Kickbase sessions.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (models.Session, []models.League, error)
}

// Projector computes the projections of every user of a league.
type Projector interface {
	ProjectLeague(ctx context.Context, session models.Session, leagueID string) ([]models.UserProjection, error)
}

// Store records projection batches.
type Store interface {
	SaveProjections(ctx context.Context, projections []models.UserProjection) error
	RotateProjections(ctx context.Context) error
}

// Notifier delivers a league report.
type Notifier interface {
	SendReport(leagueName string, rows []models.UserProjection, now time.Time) error
}

// Credentials are the Kickbase account the runner logs in with.
type Credentials struct {
	Email    string
	Password string
}

// Runner executes projection batches for the configured leagues.
type Runner struct {
	auth      Authenticator
	creds     Credentials
	projector Projector
	store     Store
	notifier  Notifier
	only      []string

	// busy serializes runs so upstream load stays bounded by one batch.
	busy sync.Mutex

	mu      sync.Mutex
	session models.Session
	leagues []models.League

	now func() time.Time
}

// New creates a Runner. leagues restricts batches to the given IDs; empty means every
// league of the account. notifier may be nil.
func New(auth Authenticator, creds Credentials, projector Projector, store Store, notifier Notifier, leagues []string) *Runner {
	return &Runner{
		auth:      auth,
		creds:     creds,
		projector: projector,
		store:     store,
		notifier:  notifier,
		only:      leagues,
		now:       time.Now,
	}
}

// login returns the cached session, logging in when there is none.
func (r *Runner) login(ctx context.Context) (models.Session, []models.League, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.Valid() {
		return r.session, r.leagues, nil
	}

	session, leagues, err := r.auth.Login(ctx, r.creds.Email, r.creds.Password)
	if err != nil {
		return models.Session{}, nil, fmt.Errorf("failed to log in: %w", err)
	}
	if len(r.only) > 0 {
		leagues = slices.DeleteFunc(leagues, func(l models.League) bool {
			return !slices.Contains(r.only, l.ID)
		})
	}
	logger.Info("Logged in to Kickbase (%d leagues)", len(leagues))

	r.session, r.leagues = session, leagues
	return session, leagues, nil
}

func (r *Runner) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = models.Session{}
	r.leagues = nil
}

// Leagues returns the leagues batches run for.
func (r *Runner) Leagues(ctx context.Context) ([]models.League, error) {
	_, leagues, err := r.login(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(leagues), nil
}

// RunLeague projects and stores one league. An expired session is renewed once.
// It returns ErrBusy without contacting Kickbase when another run is in progress.
func (r *Runner) RunLeague(ctx context.Context, leagueID string) (models.League, []models.UserProjection, error) {
	if !r.busy.TryLock() {
		return models.League{}, nil, ErrBusy
	}
	defer r.busy.Unlock()
	return r.projectAndSave(ctx, leagueID)
}

func (r *Runner) projectAndSave(ctx context.Context, leagueID string) (models.League, []models.UserProjection, error) {
	league, rows, err := r.runLeague(ctx, leagueID)
	if errors.Is(err, kickbase.ErrUnauthorized) {
		logger.Warn("Kickbase session rejected, logging in again")
		r.invalidate()
		league, rows, err = r.runLeague(ctx, leagueID)
	}
	if err != nil {
		return models.League{}, nil, err
	}

	if err := r.store.SaveProjections(ctx, rows); err != nil {
		return models.League{}, nil, fmt.Errorf("failed to save projections: %w", err)
	}
	return league, rows, nil
}

func (r *Runner) runLeague(ctx context.Context, leagueID string) (models.League, []models.UserProjection, error) {
	session, leagues, err := r.login(ctx)
	if err != nil {
		return models.League{}, nil, err
	}

	i := slices.IndexFunc(leagues, func(l models.League) bool { return l.ID == leagueID })
	if i < 0 {
		return models.League{}, nil, fmt.Errorf("league %s: %w", leagueID, ErrUnknownLeague)
	}

	rows, err := r.projector.ProjectLeague(ctx, session, leagueID)
	if err != nil {
		return models.League{}, nil, fmt.Errorf("league %s: %w", leagueID, err)
	}
	return leagues[i], rows, nil
}

// RunCycle projects every league and delivers each report. A failing league does not
// stop the others; all failures are returned joined. It returns ErrBusy when another run
// is in progress.
func (r *Runner) RunCycle(ctx context.Context) error {
	if !r.busy.TryLock() {
		return ErrBusy
	}
	defer r.busy.Unlock()

	startTime := r.now()
	logger.Info("Starting projection cycle")

	leagues, err := r.Leagues(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, l := range leagues {
		league, rows, err := r.projectAndSave(ctx, l.ID)
		if err != nil {
			logger.Error("Projection of league %s failed: %v", l.ID, err)
			errs = append(errs, err)
			continue
		}

		failed := 0
		for _, row := range rows {
			if row.Failed() {
				failed++
			}
		}
		logger.Info("Projected league %s: %d users, %d failed", league.Name, len(rows), failed)

		if r.notifier != nil {
			if err := r.notifier.SendReport(league.Name, rows, r.now()); err != nil {
				logger.Error("Failed to deliver report for league %s: %v", league.Name, err)
			}
		}
	}

	if err := r.store.RotateProjections(ctx); err != nil {
		logger.Warn("Failed to rotate projections: %v", err)
	}

	logger.Info("Projection cycle completed in %v", r.now().Sub(startTime))
	return errors.Join(errs...)
}
