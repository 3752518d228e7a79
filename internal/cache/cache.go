// Package cache defines the durable and per-batch caches used by the balance engine.
//
// Key schema: "<kind>/<escaped league ID>/<escaped user ID>". Components are path-escaped so
// distinct (league, user) pairs never map to the same key.
package cache

import (
	"context"
	"net/url"
)

// Key kinds.
const (
	KindSeasonLineup  = "season-lineup"
	KindStartingValue = "starting-value"
	KindTransfers     = "transfers"
)

// Key builds the composite cache key for a (league, user) pair.
func Key(kind, leagueID, userID string) string {
	return kind + "/" + url.PathEscape(leagueID) + "/" + url.PathEscape(userID)
}

// Durable is a string-valued key-value store that survives restarts.
// Values are written once and never expire. A miss returns ok == false and a nil error.
type Durable interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}
