package projection

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/kickbalance/internal/cache"
	"github.com/rewired-gh/kickbalance/internal/ledger"
	"github.com/rewired-gh/kickbalance/internal/lineup"
	"github.com/rewired-gh/kickbalance/internal/logger"
	"github.com/rewired-gh/kickbalance/internal/models"
	"github.com/rewired-gh/kickbalance/internal/valuation"
	"golang.org/x/sync/errgroup"
)

// Source is the upstream league API.
type Source interface {
	ledger.PageSource
	valuation.MarketValueSource
	Roster(ctx context.Context, session models.Session, leagueID, userID string) ([]models.RosterPlayer, error)
	LeagueUsers(ctx context.Context, session models.Session, leagueID string) ([]models.User, error)
}

type Config struct {
	Params           Params
	ValueDate        string // day whose market values price the season-start lineup
	Ledger           ledger.Config
	UserTimeout      time.Duration
	MaxParallelUsers int
}

// Projector computes balance projections for league participants.
type Projector struct {
	source    Source
	durable   cache.Durable
	fetcher   *ledger.Fetcher
	valuation *valuation.Calculator
	config    Config
	now       func() time.Time
}

func New(source Source, durable cache.Durable, config Config) *Projector {
	if config.MaxParallelUsers <= 0 {
		config.MaxParallelUsers = 4
	}
	return &Projector{
		source:    source,
		durable:   durable,
		fetcher:   ledger.NewFetcher(source, config.Ledger),
		valuation: valuation.New(durable, source, config.ValueDate),
		config:    config,
		now:       time.Now,
	}
}

// ProjectBalance computes one user's projection. Ledger pagination is shared with any other
// consumer of batch. On error no partial projection is returned.
func (p *Projector) ProjectBalance(ctx context.Context, batch *ledger.Batch, session models.Session, leagueID string, user models.User) (models.Projection, error) {
	var (
		netTransfers  int64
		startingValue int64
		teamValueNow  int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := batch.NetTransferBalance(gctx, session, leagueID, user.ID)
		if err != nil {
			return fmt.Errorf("failed to compute net transfer balance: %w", err)
		}
		netTransfers = v
		return nil
	})
	g.Go(func() error {
		players, err := p.source.Roster(gctx, session, leagueID, user.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch roster: %w", err)
		}
		roster := make(models.RosterSnapshot, 0, len(players))
		var total int64
		for _, pl := range players {
			if roster.Contains(pl.PlayerID) {
				continue
			}
			roster = append(roster, pl.LineupEntry)
			total += pl.MarketValue
		}
		teamValueNow = total

		start, err := lineup.New(p.durable, batch).SeasonStartLineup(gctx, session, leagueID, user.ID, roster)
		if err != nil {
			return fmt.Errorf("failed to reconstruct season-start lineup: %w", err)
		}
		v, err := p.valuation.StartingTeamValue(gctx, session, leagueID, user.ID, start)
		if err != nil {
			return fmt.Errorf("failed to compute starting team value: %w", err)
		}
		startingValue = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.Projection{}, err
	}

	return Compute(p.config.Params, Inputs{
		StartingTeamValue:  startingValue,
		NetTransferBalance: netTransfers,
		TeamValueNow:       teamValueNow,
		Points:             user.Points,
		Now:                p.now(),
	}), nil
}

// ProjectLeague projects every participant of a league in one batch. Users are processed
// concurrently up to MaxParallelUsers, each under its own UserTimeout. A failed user is reported
// through UserProjection.Err and does not affect the others. Results are ordered by max bid,
// highest first, with failures last.
func (p *Projector) ProjectLeague(ctx context.Context, session models.Session, leagueID string) ([]models.UserProjection, error) {
	users, err := p.source.LeagueUsers(ctx, session, leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list league users: %w", err)
	}

	batch := p.fetcher.NewBatch()
	logger.Info("Projecting %d users in league %s (batch %s)", len(users), leagueID, batch.ID())

	results := make([]models.UserProjection, len(users))
	var g errgroup.Group
	g.SetLimit(p.config.MaxParallelUsers)
	for i, user := range users {
		g.Go(func() error {
			results[i] = p.projectWithDeadline(ctx, batch, session, leagueID, user)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Failed() != b.Failed() {
			return !a.Failed()
		}
		return a.Projection.MaxBid.Max > b.Projection.MaxBid.Max
	})
	return results, nil
}

func (p *Projector) projectWithDeadline(ctx context.Context, batch *ledger.Batch, session models.Session, leagueID string, user models.User) models.UserProjection {
	if p.config.UserTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.UserTimeout)
		defer cancel()
	}

	result := models.UserProjection{
		ID:       uuid.NewString(),
		BatchID:  batch.ID(),
		LeagueID: leagueID,
		User:     user,
	}
	projection, err := p.ProjectBalance(ctx, batch, session, leagueID, user)
	result.ComputedAt = p.now()
	if err != nil {
		logger.Error("Projection failed for user %s (%s) in league %s: %v", user.Name, user.ID, leagueID, err)
		result.Err = err
		return result
	}
	result.Projection = projection
	return result
}
