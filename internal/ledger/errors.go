package ledger

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/kickbalance/internal/models"
)

// ErrStalledFeed is returned when a page only repeats events already seen, so the offset
// would not advance through new data.
var ErrStalledFeed = errors.New("ledger feed is not advancing")

// PartialLedgerError reports that pagination stopped before the natural end of the feed.
// Transfers holds what was retrieved before Offset.
type PartialLedgerError struct {
	Transfers []models.Transfer
	Offset    int
	Err       error
}

func (e *PartialLedgerError) Error() string {
	return fmt.Sprintf("ledger incomplete at offset %d (%d transfers retrieved): %v", e.Offset, len(e.Transfers), e.Err)
}

func (e *PartialLedgerError) Unwrap() error { return e.Err }
