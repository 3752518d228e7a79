// Package valuation computes the market value of a season-start lineup at the reference date.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rewired-gh/kickbalance/internal/cache"
	"github.com/rewired-gh/kickbalance/internal/kickbase"
	"github.com/rewired-gh/kickbalance/internal/logger"
	"github.com/rewired-gh/kickbalance/internal/models"
	"golang.org/x/sync/errgroup"
)

// MarketValueSource yields a player's market value time series.
type MarketValueSource interface {
	MarketValues(ctx context.Context, session models.Session, leagueID, playerID string) ([]models.MarketValuePoint, error)
}

// Calculator sums lineup market values as of a fixed day and caches the total durably.
type Calculator struct {
	durable   cache.Durable
	source    MarketValueSource
	valueDate string
}

// New creates a Calculator reading values recorded on valueDate (YYYY-MM-DD).
func New(durable cache.Durable, source MarketValueSource, valueDate string) *Calculator {
	return &Calculator{durable: durable, source: source, valueDate: valueDate}
}

// StartingTeamValue returns the cached starting value for (leagueID, userID) if present,
// otherwise sums the lineup's values on the value date, caches the total and returns it.
//
// A player without a value on that day, or whose series is malformed, contributes 0.
// Transport and upstream failures abort the calculation so that no wrong total is cached.
func (c *Calculator) StartingTeamValue(ctx context.Context, session models.Session, leagueID, userID string, lineup models.SeasonStartLineup) (int64, error) {
	key := cache.Key(cache.KindStartingValue, leagueID, userID)

	raw, ok, err := c.durable.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read starting value cache: %w", err)
	}
	if ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to decode cached starting value %s: %w", key, err)
		}
		return v, nil
	}

	values := make([]int64, len(lineup))
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range lineup {
		g.Go(func() error {
			v, err := c.playerValue(gctx, session, leagueID, entry)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, v := range values {
		total += v
	}

	if err := c.durable.Set(ctx, key, strconv.FormatInt(total, 10)); err != nil {
		return 0, fmt.Errorf("failed to write starting value cache: %w", err)
	}
	logger.Debug("Starting team value for user %s in league %s: %d", userID, leagueID, total)
	return total, nil
}

func (c *Calculator) playerValue(ctx context.Context, session models.Session, leagueID string, entry models.LineupEntry) (int64, error) {
	series, err := c.source.MarketValues(ctx, session, leagueID, entry.PlayerID)
	if err != nil {
		if kickbase.IsMalformed(err) {
			logger.Warn("Malformed market values for player %s (%s %s), counting 0: %v",
				entry.PlayerID, entry.FirstName, entry.LastName, err)
			return 0, nil
		}
		if errors.Is(err, kickbase.ErrNotFound) {
			logger.Warn("No market values for player %s (%s %s), counting 0: %v",
				entry.PlayerID, entry.FirstName, entry.LastName, err)
			return 0, nil
		}
		return 0, fmt.Errorf("failed to fetch market values for player %s: %w", entry.PlayerID, err)
	}
	return ValueOn(series, c.valueDate), nil
}

// ValueOn returns the value recorded on day, or 0 if the series has no point for it.
func ValueOn(series []models.MarketValuePoint, day string) int64 {
	for _, p := range series {
		if p.Day == day {
			return p.Value
		}
	}
	return 0
}
