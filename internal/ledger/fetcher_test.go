package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/kickbalance/internal/models"
)

// fakeFeed serves events in pages of at most pageSize. failAt maps an offset to the number of
// consecutive failures to return for it.
type fakeFeed struct {
	mu       sync.Mutex
	events   []models.FeedEvent
	pageSize int
	failAt   map[int]int
	calls    int
	repeat   bool
}

func (f *fakeFeed) FeedPage(_ context.Context, _ models.Session, _, _ string, start int) ([]models.FeedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if n := f.failAt[start]; n > 0 {
		f.failAt[start] = n - 1
		return nil, errors.New("upstream status 503")
	}
	if f.repeat {
		start = 0
	}
	if start >= len(f.events) {
		return []models.FeedEvent{}, nil
	}
	end := min(start+f.pageSize, len(f.events))
	return append([]models.FeedEvent(nil), f.events[start:end]...), nil
}

func (f *fakeFeed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func makeEvents(n int) []models.FeedEvent {
	events := make([]models.FeedEvent, n)
	for i := range events {
		typ := models.FeedTypeBought
		if i%2 == 1 {
			typ = models.FeedTypeSold
		}
		events[i] = models.FeedEvent{
			ID:       fmt.Sprintf("e%d", i),
			Type:     typ,
			Price:    int64(i+1) * 1000,
			PlayerID: fmt.Sprintf("p%d", i),
		}
	}
	return events
}

func testConfig() Config {
	return Config{PageRetries: 2, PageRetryDelay: time.Millisecond}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		event     models.FeedEvent
		wantKind  models.TransferKind
		wantDelta int64
	}{
		{"bought", models.FeedEvent{Type: 12, Price: 5_000_000, PlayerID: "p"}, models.TransferBought, -5_000_000},
		{"sold", models.FeedEvent{Type: 2, Price: 3_000_000, PlayerID: "p"}, models.TransferSold, 3_000_000},
		{"unknown", models.FeedEvent{Type: 7, Price: 1_000_000, PlayerID: "p"}, models.TransferUnknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.event)
			if got.Kind != tt.wantKind || got.PriceDelta != tt.wantDelta {
				t.Errorf("Classify() = %v/%d, want %v/%d", got.Kind, got.PriceDelta, tt.wantKind, tt.wantDelta)
			}
			if got.PlayerID != "p" {
				t.Errorf("player ID not carried over: %q", got.PlayerID)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("classified transfer invalid: %v", err)
			}
		})
	}
}

func TestFetchAllTransfers_Pagination(t *testing.T) {
	tests := []struct {
		n, pageSize int
	}{
		{0, 5},
		{1, 5},
		{5, 5},
		{23, 5},
		{100, 25},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/p=%d", tt.n, tt.pageSize), func(t *testing.T) {
			feed := &fakeFeed{events: makeEvents(tt.n), pageSize: tt.pageSize}
			b := NewFetcher(feed, testConfig()).NewBatch()

			got, err := b.FetchAllTransfers(context.Background(), models.NewSession("tok"), "L", "U")
			if err != nil {
				t.Fatalf("FetchAllTransfers: %v", err)
			}
			if len(got) != tt.n {
				t.Errorf("got %d transfers, want %d", len(got), tt.n)
			}
			seen := map[string]bool{}
			for _, tr := range got {
				if seen[tr.PlayerID] {
					t.Errorf("duplicate transfer for %s", tr.PlayerID)
				}
				seen[tr.PlayerID] = true
			}
			wantCalls := (tt.n+tt.pageSize-1)/tt.pageSize + 1
			if feed.Calls() != wantCalls {
				t.Errorf("got %d calls, want %d", feed.Calls(), wantCalls)
			}
		})
	}
}

func TestFetchAllTransfers_DeduplicatesOverlappingPages(t *testing.T) {
	events := makeEvents(4)
	// the second page repeats the last event of the first page
	pages := map[int][]models.FeedEvent{
		0: events[0:2],
		2: {events[1], events[2], events[3]},
	}
	src := pageSourceFunc(func(start int) ([]models.FeedEvent, error) {
		return pages[start], nil
	})

	got, err := NewFetcher(src, testConfig()).NewBatch().FetchAllTransfers(context.Background(), models.Session{}, "L", "U")
	if err != nil {
		t.Fatalf("FetchAllTransfers: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("got %d transfers, want 4", len(got))
	}
}

func TestFetchAllTransfers_RetriesFailedPage(t *testing.T) {
	feed := &fakeFeed{events: makeEvents(10), pageSize: 4, failAt: map[int]int{4: 2}}
	got, err := NewFetcher(feed, testConfig()).NewBatch().FetchAllTransfers(context.Background(), models.Session{}, "L", "U")
	if err != nil {
		t.Fatalf("FetchAllTransfers: %v", err)
	}
	if len(got) != 10 {
		t.Errorf("got %d transfers, want 10", len(got))
	}
}

func TestFetchAllTransfers_FailureIsNotEndOfFeed(t *testing.T) {
	feed := &fakeFeed{events: makeEvents(10), pageSize: 4, failAt: map[int]int{8: 100}}
	b := NewFetcher(feed, testConfig()).NewBatch()

	got, err := b.FetchAllTransfers(context.Background(), models.Session{}, "L", "U")
	if got != nil {
		t.Errorf("expected no transfers on failure, got %d", len(got))
	}
	var partial *PartialLedgerError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialLedgerError, got %v", err)
	}
	if partial.Offset != 8 {
		t.Errorf("offset = %d, want 8", partial.Offset)
	}
	if len(partial.Transfers) != 8 {
		t.Errorf("partial transfers = %d, want 8", len(partial.Transfers))
	}

	// incomplete ledgers are not cached, a later call paginates again
	feed.mu.Lock()
	feed.failAt = nil
	feed.mu.Unlock()
	got, err = b.FetchAllTransfers(context.Background(), models.Session{}, "L", "U")
	if err != nil || len(got) != 10 {
		t.Errorf("retry after failure: %d transfers, err %v", len(got), err)
	}
}

func TestFetchAllTransfers_StalledFeed(t *testing.T) {
	feed := &fakeFeed{events: makeEvents(3), pageSize: 3, repeat: true}
	_, err := NewFetcher(feed, testConfig()).NewBatch().FetchAllTransfers(context.Background(), models.Session{}, "L", "U")
	if !errors.Is(err, ErrStalledFeed) {
		t.Errorf("expected ErrStalledFeed, got %v", err)
	}
}

func TestFetchAllTransfers_StalledFeedWithoutIDs(t *testing.T) {
	// the source ignores start and keeps serving the same ID-less page
	src := pageSourceFunc(func(int) ([]models.FeedEvent, error) {
		return []models.FeedEvent{{Type: models.FeedTypeBought, Price: 1, PlayerID: "a"}}, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := NewFetcher(src, testConfig()).NewBatch().FetchAllTransfers(ctx, models.Session{}, "L", "U")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStalledFeed) {
			t.Errorf("expected ErrStalledFeed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pagination did not terminate")
	}
}

func TestFetchAllTransfers_KeepsDistinctEventsWithoutIDs(t *testing.T) {
	src := pageSourceFunc(func(start int) ([]models.FeedEvent, error) {
		if start > 0 {
			return nil, nil
		}
		return []models.FeedEvent{
			{Type: models.FeedTypeBought, Price: 1_000, PlayerID: "a"},
			{Type: models.FeedTypeSold, Price: 2_000, PlayerID: "a"},
			{Type: models.FeedTypeBought, Price: 1_000, PlayerID: "b"},
		}, nil
	})
	got, err := NewFetcher(src, testConfig()).NewBatch().FetchAllTransfers(context.Background(), models.Session{}, "L", "U")
	if err != nil {
		t.Fatalf("FetchAllTransfers: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d transfers, want 3", len(got))
	}
}

func TestFetchAllTransfers_StopsBetweenPagesOnDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pages := 0
	// every page is fresh; only cancellation can end pagination
	src := pageSourceFunc(func(start int) ([]models.FeedEvent, error) {
		pages++
		if pages == 3 {
			cancel()
		}
		return []models.FeedEvent{{ID: fmt.Sprintf("e%d", start), Type: models.FeedTypeSold, Price: 1}}, nil
	})

	_, err := NewFetcher(src, testConfig()).NewBatch().FetchAllTransfers(ctx, models.Session{}, "L", "U")
	var partial *PartialLedgerError
	if !errors.As(err, &partial) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled PartialLedgerError, got %v", err)
	}
	if pages != 3 {
		t.Errorf("requested %d pages after cancellation, want 3", pages)
	}
	if len(partial.Transfers) != 3 {
		t.Errorf("partial transfers = %d, want 3", len(partial.Transfers))
	}
}

func TestFetchAllTransfers_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := pageSourceFunc(func(int) ([]models.FeedEvent, error) {
		return nil, context.Canceled
	})
	_, err := NewFetcher(src, testConfig()).NewBatch().FetchAllTransfers(ctx, models.Session{}, "L", "U")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBatch_PaginatesOncePerUser(t *testing.T) {
	feed := &fakeFeed{events: makeEvents(7), pageSize: 3}
	b := NewFetcher(feed, testConfig()).NewBatch()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.FetchAllTransfers(ctx, models.Session{}, "L", "U"); err != nil {
				t.Errorf("FetchAllTransfers: %v", err)
			}
		}()
	}
	wg.Wait()
	if _, err := b.NetTransferBalance(ctx, models.Session{}, "L", "U"); err != nil {
		t.Fatalf("NetTransferBalance: %v", err)
	}
	if feed.Calls() != 4 {
		t.Errorf("got %d calls, want 4 (single pagination)", feed.Calls())
	}

	if _, err := b.FetchAllTransfers(ctx, models.Session{}, "L", "other"); err != nil {
		t.Fatalf("FetchAllTransfers: %v", err)
	}
	if feed.Calls() != 8 {
		t.Errorf("got %d calls, want 8 after second user", feed.Calls())
	}

	// a fresh batch starts with an empty cache
	if _, err := b.fetcher.NewBatch().FetchAllTransfers(ctx, models.Session{}, "L", "U"); err != nil {
		t.Fatalf("FetchAllTransfers: %v", err)
	}
	if feed.Calls() != 12 {
		t.Errorf("got %d calls, want 12 after new batch", feed.Calls())
	}
}

func TestBatch_NetTransferBalance(t *testing.T) {
	src := pageSourceFunc(func(start int) ([]models.FeedEvent, error) {
		if start > 0 {
			return nil, nil
		}
		return []models.FeedEvent{
			{ID: "1", Type: 12, Price: 5_000_000, PlayerID: "a"},
			{ID: "2", Type: 2, Price: 3_000_000, PlayerID: "c"},
			{ID: "3", Type: 99, Price: 9_000_000, PlayerID: "x"},
		}, nil
	})
	got, err := NewFetcher(src, testConfig()).NewBatch().NetTransferBalance(context.Background(), models.Session{}, "L", "U")
	if err != nil {
		t.Fatalf("NetTransferBalance: %v", err)
	}
	if got != -2_000_000 {
		t.Errorf("NetTransferBalance() = %d, want -2000000", got)
	}
}

type pageSourceFunc func(start int) ([]models.FeedEvent, error)

func (f pageSourceFunc) FeedPage(_ context.Context, _ models.Session, _, _ string, start int) ([]models.FeedEvent, error) {
	return f(start)
}
