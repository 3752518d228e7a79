package models

import (
	"errors"
	"time"
)

// BalanceRange bounds the true cash balance of a user.
type BalanceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Validate checks Min <= Max.
func (r BalanceRange) Validate() error {
	if r.Min > r.Max {
		return errors.New("balance range min must be <= max")
	}
	return nil
}

// BidRange bounds the maximum transfer bid a user may place.
type BidRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Validate checks Min <= Max.
func (r BidRange) Validate() error {
	if r.Min > r.Max {
		return errors.New("bid range min must be <= max")
	}
	return nil
}

// Projection is the financial estimate for one user in one league.
type Projection struct {
	Balance            BalanceRange `json:"balance"`
	MaxBid             BidRange     `json:"max_bid"`
	TeamValueNow       int64        `json:"team_value_now"`
	StartingTeamValue  int64        `json:"starting_team_value"`
	NetTransferBalance int64        `json:"net_transfer_balance"`
}

// UserProjection is a projection tagged with the user and batch that produced it.
// Err is set when the user's projection failed; Projection is then zero.
type UserProjection struct {
	ID         string     `json:"id"`
	BatchID    string     `json:"batch_id"`
	LeagueID   string     `json:"league_id"`
	User       User       `json:"user"`
	Projection Projection `json:"projection"`
	ComputedAt time.Time  `json:"computed_at"`
	Err        error      `json:"-"`
}

// Failed reports whether the projection could not be computed.
func (p UserProjection) Failed() bool {
	return p.Err != nil
}
