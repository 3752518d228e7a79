package runner

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/kickbalance/internal/kickbase"
	"github.com/rewired-gh/kickbalance/internal/models"
)

type fakeAuth struct {
	mu     sync.Mutex
	logins int
	err    error
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (models.Session, []models.League, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.Session{}, nil, f.err
	}
	f.logins++
	leagues := []models.League{{ID: "l1", Name: "First"}, {ID: "l2", Name: "Second"}}
	return models.NewSession("token-" + strconv.Itoa(f.logins)), leagues, nil
}

type fakeProjector struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error // per league, consumed on first call
	tokens   []string
}

func (f *fakeProjector) ProjectLeague(ctx context.Context, session models.Session, leagueID string) ([]models.UserProjection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[leagueID]++
	f.tokens = append(f.tokens, session.Token())
	if err, ok := f.failures[leagueID]; ok {
		delete(f.failures, leagueID)
		return nil, err
	}
	return []models.UserProjection{
		{LeagueID: leagueID, User: models.User{ID: "u1", Name: "Alice"}},
		{LeagueID: leagueID, User: models.User{ID: "u2", Name: "Bob"}, Err: errors.New("roster")},
	}, nil
}

type fakeStore struct {
	saved   map[string]int
	rotated int
	saveErr error
}

func (f *fakeStore) SaveProjections(ctx context.Context, projections []models.UserProjection) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.saved == nil {
		f.saved = make(map[string]int)
	}
	for _, p := range projections {
		f.saved[p.LeagueID]++
	}
	return nil
}

func (f *fakeStore) RotateProjections(ctx context.Context) error {
	f.rotated++
	return nil
}

type fakeNotifier struct {
	reports []string
}

func (f *fakeNotifier) SendReport(leagueName string, rows []models.UserProjection, now time.Time) error {
	f.reports = append(f.reports, leagueName)
	return nil
}

func TestRunCycle_AllLeagues(t *testing.T) {
	auth := &fakeAuth{}
	proj := &fakeProjector{}
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	r := New(auth, Credentials{Email: "a@b.c", Password: "pw"}, proj, store, notifier, nil)

	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if auth.logins != 1 {
		t.Errorf("expected 1 login, got %d", auth.logins)
	}
	if len(notifier.reports) != 2 || notifier.reports[0] != "First" || notifier.reports[1] != "Second" {
		t.Errorf("unexpected reports: %v", notifier.reports)
	}
	if store.saved["l1"] != 2 || store.saved["l2"] != 2 {
		t.Errorf("unexpected saved rows: %v", store.saved)
	}
	if store.rotated != 1 {
		t.Errorf("expected 1 rotation, got %d", store.rotated)
	}
}

func TestRunCycle_LeagueFilter(t *testing.T) {
	proj := &fakeProjector{}
	notifier := &fakeNotifier{}
	r := New(&fakeAuth{}, Credentials{}, proj, &fakeStore{}, notifier, []string{"l2"})

	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if proj.calls["l1"] != 0 || proj.calls["l2"] != 1 {
		t.Errorf("unexpected calls: %v", proj.calls)
	}
	if len(notifier.reports) != 1 || notifier.reports[0] != "Second" {
		t.Errorf("unexpected reports: %v", notifier.reports)
	}
}

func TestRunCycle_FailingLeagueDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	proj := &fakeProjector{failures: map[string]error{"l1": boom}}
	notifier := &fakeNotifier{}
	r := New(&fakeAuth{}, Credentials{}, proj, &fakeStore{}, notifier, nil)

	err := r.RunCycle(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined boom error, got %v", err)
	}
	if len(notifier.reports) != 1 || notifier.reports[0] != "Second" {
		t.Errorf("unexpected reports: %v", notifier.reports)
	}
}

func TestRunLeague_RenewsRejectedSession(t *testing.T) {
	auth := &fakeAuth{}
	rejected := &kickbase.UpstreamError{Op: "league users", StatusCode: 401}
	proj := &fakeProjector{failures: map[string]error{"l1": rejected}}
	r := New(auth, Credentials{}, proj, &fakeStore{}, nil, nil)

	league, rows, err := r.RunLeague(context.Background(), "l1")
	if err != nil {
		t.Fatalf("RunLeague failed: %v", err)
	}
	if league.Name != "First" || len(rows) != 2 {
		t.Errorf("unexpected result: %v %d", league, len(rows))
	}
	if auth.logins != 2 {
		t.Errorf("expected a second login, got %d", auth.logins)
	}
	if len(proj.tokens) != 2 || proj.tokens[0] == proj.tokens[1] {
		t.Errorf("retry should use the renewed session: %v", proj.tokens)
	}
}

func TestRunLeague_UnknownLeague(t *testing.T) {
	r := New(&fakeAuth{}, Credentials{}, &fakeProjector{}, &fakeStore{}, nil, nil)

	_, _, err := r.RunLeague(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownLeague) {
		t.Errorf("expected ErrUnknownLeague, got %v", err)
	}
}

func TestRunLeague_LoginFailure(t *testing.T) {
	r := New(&fakeAuth{err: kickbase.ErrUnauthorized}, Credentials{}, &fakeProjector{}, &fakeStore{}, nil, nil)

	if _, _, err := r.RunLeague(context.Background(), "l1"); err == nil {
		t.Error("expected login failure")
	}
}

func TestRunLeague_SaveFailure(t *testing.T) {
	r := New(&fakeAuth{}, Credentials{}, &fakeProjector{}, &fakeStore{saveErr: errors.New("disk full")}, nil, nil)

	if _, _, err := r.RunLeague(context.Background(), "l1"); err == nil {
		t.Error("expected save failure")
	}
}

// blockingProjector holds ProjectLeague until release is closed.
type blockingProjector struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingProjector) ProjectLeague(ctx context.Context, session models.Session, leagueID string) ([]models.UserProjection, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return nil, nil
}

func TestRunner_RejectsOverlappingRuns(t *testing.T) {
	proj := &blockingProjector{entered: make(chan struct{}, 1), release: make(chan struct{})}
	r := New(&fakeAuth{}, Credentials{}, proj, &fakeStore{}, nil, []string{"l1"})

	done := make(chan error, 1)
	go func() { done <- r.RunCycle(context.Background()) }()
	<-proj.entered

	if err := r.RunCycle(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second RunCycle: expected ErrBusy, got %v", err)
	}
	if _, _, err := r.RunLeague(context.Background(), "l1"); !errors.Is(err, ErrBusy) {
		t.Errorf("RunLeague during cycle: expected ErrBusy, got %v", err)
	}

	close(proj.release)
	if err := <-done; err != nil {
		t.Fatalf("first RunCycle failed: %v", err)
	}
	if _, _, err := r.RunLeague(context.Background(), "l1"); err != nil {
		t.Errorf("RunLeague after cycle: %v", err)
	}
}
