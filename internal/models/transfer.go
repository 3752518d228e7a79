// Package models defines the core domain entities: transfers, lineups, and balance projections.
package models

import (
	"errors"
	"time"
)

// Feed event type codes used by the league ledger.
const (
	FeedTypeSold   = 2
	FeedTypeBought = 12
)

// FeedEvent is a single raw entry of a user's ledger feed, already decoded from the wire.
type FeedEvent struct {
	ID              string
	Type            int
	Price           int64
	PlayerID        string
	PlayerFirstName string
	PlayerLastName  string
	Date            time.Time
}

// TransferKind classifies a ledger event.
type TransferKind int

const (
	TransferUnknown TransferKind = iota
	TransferBought
	TransferSold
)

func (k TransferKind) String() string {
	switch k {
	case TransferBought:
		return "bought"
	case TransferSold:
		return "sold"
	default:
		return "unknown"
	}
}

// Transfer is a normalized ledger event. PriceDelta is negative for cash out and positive for cash in.
type Transfer struct {
	Kind            TransferKind `json:"kind"`
	PriceDelta      int64        `json:"price_delta"`
	PlayerID        string       `json:"player_id"`
	PlayerFirstName string       `json:"player_first_name"`
	PlayerLastName  string       `json:"player_last_name"`
}

// Validate checks that the sign of PriceDelta agrees with Kind.
func (t Transfer) Validate() error {
	switch t.Kind {
	case TransferBought:
		if t.PriceDelta > 0 {
			return errors.New("bought transfer must not have a positive price delta")
		}
	case TransferSold:
		if t.PriceDelta < 0 {
			return errors.New("sold transfer must not have a negative price delta")
		}
	case TransferUnknown:
		if t.PriceDelta != 0 {
			return errors.New("unknown transfer must have a zero price delta")
		}
	default:
		return errors.New("invalid transfer kind")
	}
	return nil
}

// NetTransferBalance sums the price deltas of all transfers.
func NetTransferBalance(transfers []Transfer) int64 {
	var sum int64
	for _, t := range transfers {
		sum += t.PriceDelta
	}
	return sum
}
