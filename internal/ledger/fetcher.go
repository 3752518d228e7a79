// Package ledger retrieves and normalizes a user's complete transfer feed.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rewired-gh/kickbalance/internal/cache"
	"github.com/rewired-gh/kickbalance/internal/logger"
	"github.com/rewired-gh/kickbalance/internal/models"
)

// PageSource yields one page of a user's ledger feed. An empty page with a nil error is the
// end of the feed; a non-nil error is a failed page and never means end of feed.
type PageSource interface {
	FeedPage(ctx context.Context, session models.Session, leagueID, userID string, start int) ([]models.FeedEvent, error)
}

type Config struct {
	PageRetries    int
	PageRetryDelay time.Duration
}

// Fetcher drives pagination over a PageSource.
type Fetcher struct {
	source PageSource
	config Config
}

func NewFetcher(source PageSource, config Config) *Fetcher {
	if config.PageRetries < 0 {
		config.PageRetries = 0
	}
	return &Fetcher{source: source, config: config}
}

// Batch memoizes full ledgers per (league, user) for the lifetime of one processing batch.
// Discard it when the batch completes.
type Batch struct {
	fetcher   *Fetcher
	transfers *cache.Transient[[]models.Transfer]
}

// NewBatch starts a batch with an empty transient cache.
func (f *Fetcher) NewBatch() *Batch {
	return &Batch{
		fetcher:   f,
		transfers: cache.NewTransient[[]models.Transfer](),
	}
}

// ID returns the batch ID.
func (b *Batch) ID() string {
	return b.transfers.ID()
}

// FetchAllTransfers returns the user's complete ledger. Concurrent and repeated calls for the same
// (league, user) within the batch paginate the feed only once. Incomplete ledgers are never cached.
func (b *Batch) FetchAllTransfers(ctx context.Context, session models.Session, leagueID, userID string) ([]models.Transfer, error) {
	key := cache.Key(cache.KindTransfers, leagueID, userID)
	transfers, err := b.transfers.GetOrLoad(key, func() ([]models.Transfer, error) {
		return b.fetcher.fetchAll(ctx, session, leagueID, userID)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(transfers), nil
}

// NetTransferBalance sums the price deltas of the user's complete ledger.
func (b *Batch) NetTransferBalance(ctx context.Context, session models.Session, leagueID, userID string) (int64, error) {
	transfers, err := b.FetchAllTransfers(ctx, session, leagueID, userID)
	if err != nil {
		return 0, err
	}
	return models.NetTransferBalance(transfers), nil
}

func (f *Fetcher) fetchAll(ctx context.Context, session models.Session, leagueID, userID string) ([]models.Transfer, error) {
	transfers := []models.Transfer{}
	seen := make(map[string]struct{})
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, &PartialLedgerError{Transfers: transfers, Offset: offset, Err: err}
		}
		events, err := f.fetchPage(ctx, session, leagueID, userID, offset)
		if err != nil {
			return nil, &PartialLedgerError{Transfers: transfers, Offset: offset, Err: err}
		}
		if len(events) == 0 {
			logger.Debug("Fetched %d transfers for user %s in league %s", len(transfers), userID, leagueID)
			return transfers, nil
		}

		fresh := 0
		for _, e := range events {
			key := eventKey(e)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			transfers = append(transfers, Classify(e))
			fresh++
		}
		if fresh == 0 {
			return nil, &PartialLedgerError{Transfers: transfers, Offset: offset, Err: ErrStalledFeed}
		}
		offset += len(events)
	}
}

// eventKey identifies an event within one pagination. Events without an ID fall back
// to their content.
func eventKey(e models.FeedEvent) string {
	if e.ID != "" {
		return "id:" + e.ID
	}
	return fmt.Sprintf("anon:%d/%s/%d/%d", e.Type, e.PlayerID, e.Price, e.Date.UnixNano())
}

// fetchPage requests one page, retrying failures up to PageRetries times.
func (f *Fetcher) fetchPage(ctx context.Context, session models.Session, leagueID, userID string, offset int) ([]models.FeedEvent, error) {
	var lastErr error
	for i := 0; i <= f.config.PageRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.config.PageRetryDelay * time.Duration(i)):
			}
		}
		events, err := f.source.FeedPage(ctx, session, leagueID, userID, offset)
		if err == nil {
			return events, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		logger.Warn("Feed page at offset %d for user %s failed (attempt %d/%d): %v",
			offset, userID, i+1, f.config.PageRetries+1, err)
	}
	return nil, lastErr
}
