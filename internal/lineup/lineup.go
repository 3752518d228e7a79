// Package lineup reconstructs a user's roster as it stood at the season reference date.
package lineup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rewired-gh/kickbalance/internal/cache"
	"github.com/rewired-gh/kickbalance/internal/logger"
	"github.com/rewired-gh/kickbalance/internal/models"
)

// TransferSource yields a user's complete ledger.
type TransferSource interface {
	FetchAllTransfers(ctx context.Context, session models.Session, leagueID, userID string) ([]models.Transfer, error)
}

// Reconstructor derives season-start lineups and persists them in the durable cache.
type Reconstructor struct {
	durable   cache.Durable
	transfers TransferSource
}

func New(durable cache.Durable, transfers TransferSource) *Reconstructor {
	return &Reconstructor{durable: durable, transfers: transfers}
}

// SeasonStartLineup returns the cached lineup for (leagueID, userID) if present. Otherwise it
// reconstructs the lineup from roster and the full ledger and caches it before returning.
// A cached lineup is returned as is and never recomputed.
func (r *Reconstructor) SeasonStartLineup(ctx context.Context, session models.Session, leagueID, userID string, roster models.RosterSnapshot) (models.SeasonStartLineup, error) {
	key := cache.Key(cache.KindSeasonLineup, leagueID, userID)

	raw, ok, err := r.durable.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read lineup cache: %w", err)
	}
	if ok {
		var cached models.SeasonStartLineup
		if err := json.Unmarshal([]byte(raw), &cached); err != nil {
			return nil, fmt.Errorf("failed to decode cached lineup %s: %w", key, err)
		}
		return cached, nil
	}

	transfers, err := r.transfers.FetchAllTransfers(ctx, session, leagueID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transfers: %w", err)
	}

	lineup := Reconstruct(roster, transfers)

	encoded, err := json.Marshal(lineup)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lineup: %w", err)
	}
	if err := r.durable.Set(ctx, key, string(encoded)); err != nil {
		return nil, fmt.Errorf("failed to write lineup cache: %w", err)
	}
	logger.Debug("Reconstructed season-start lineup of %d players for user %s in league %s", len(lineup), userID, leagueID)
	return lineup, nil
}

// Reconstruct derives the season-start lineup from the current roster and the full ledger:
//   - players on the roster that were never bought were there from the start;
//   - players not on the roster, never bought, and sold at least once were there from the start
//     and sold later.
//
// A player bought, sold and bought again is treated as bought and therefore excluded.
func Reconstruct(roster models.RosterSnapshot, transfers []models.Transfer) models.SeasonStartLineup {
	bought := make(map[string]bool)
	for _, t := range transfers {
		if t.Kind == models.TransferBought {
			bought[t.PlayerID] = true
		}
	}

	lineup := models.SeasonStartLineup{}
	added := make(map[string]bool)
	add := func(e models.LineupEntry) {
		if added[e.PlayerID] {
			return
		}
		added[e.PlayerID] = true
		lineup = append(lineup, e)
	}

	for _, p := range roster {
		if !bought[p.PlayerID] {
			add(p)
		}
	}
	for _, t := range transfers {
		if t.Kind != models.TransferSold || bought[t.PlayerID] || roster.Contains(t.PlayerID) {
			continue
		}
		add(models.LineupEntry{
			PlayerID:  t.PlayerID,
			FirstName: t.PlayerFirstName,
			LastName:  t.PlayerLastName,
		})
	}
	return lineup
}
