// Package projection turns reconstructed season facts into balance and max-bid ranges.
package projection

import (
	"time"

	"github.com/rewired-gh/kickbalance/internal/models"
	"github.com/shopspring/decimal"
)

// Params are the fixed league rules.
type Params struct {
	ReferenceDate time.Time       // season start; daily bonuses accrue from here
	InitialCredit int64           // cash plus squad value every participant starts with
	DailyBonusCap int64           // maximum unobservable bonus per elapsed day
	BidFactor     decimal.Decimal // allowed overspend relative to combined net worth
	PointsBonus   int64           // cash credited per league point
}

// Inputs are the per-user facts a projection is computed from.
type Inputs struct {
	StartingTeamValue  int64
	NetTransferBalance int64
	TeamValueNow       int64
	Points             int64
	Now                time.Time
}

// Compute derives the balance and max-bid ranges. The upper bounds add the largest bonus that
// could have accrued since the reference date, so Min <= Max always holds for a non-negative
// DailyBonusCap and BidFactor.
func Compute(p Params, in Inputs) models.Projection {
	startingCash := p.InitialCredit - in.StartingTeamValue
	netNow := startingCash + in.NetTransferBalance + in.Points*p.PointsBonus

	balance := models.BalanceRange{
		Min: netNow,
		Max: netNow + MaxBonusAccrual(p.DailyBonusCap, p.ReferenceDate, in.Now),
	}

	return models.Projection{
		Balance: balance,
		MaxBid: models.BidRange{
			Min: maxBid(in.TeamValueNow, balance.Min, p.BidFactor),
			Max: maxBid(in.TeamValueNow, balance.Max, p.BidFactor),
		},
		TeamValueNow:       in.TeamValueNow,
		StartingTeamValue:  in.StartingTeamValue,
		NetTransferBalance: in.NetTransferBalance,
	}
}

// MaxBonusAccrual is dailyCap times the (fractional) days elapsed since ref, or 0 before ref.
func MaxBonusAccrual(dailyCap int64, ref, now time.Time) int64 {
	elapsed := now.Sub(ref)
	if elapsed <= 0 || dailyCap <= 0 {
		return 0
	}
	days := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(24 * time.Hour)))
	return decimal.NewFromInt(dailyCap).Mul(days).IntPart()
}

// maxBid is (teamValue + balance) * factor + balance, truncated to whole units.
func maxBid(teamValue, balance int64, factor decimal.Decimal) int64 {
	worth := decimal.NewFromInt(teamValue + balance)
	return worth.Mul(factor).Add(decimal.NewFromInt(balance)).IntPart()
}
