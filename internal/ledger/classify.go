package ledger

import "github.com/rewired-gh/kickbalance/internal/models"

// Classify normalizes a raw feed event. Purchases carry a negative delta, sales a positive one,
// and every other event type contributes zero.
func Classify(e models.FeedEvent) models.Transfer {
	t := models.Transfer{
		PlayerID:        e.PlayerID,
		PlayerFirstName: e.PlayerFirstName,
		PlayerLastName:  e.PlayerLastName,
	}
	switch e.Type {
	case models.FeedTypeBought:
		t.Kind = models.TransferBought
		t.PriceDelta = -e.Price
	case models.FeedTypeSold:
		t.Kind = models.TransferSold
		t.PriceDelta = e.Price
	default:
		t.Kind = models.TransferUnknown
	}
	return t
}
