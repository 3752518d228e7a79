// Package kickbase provides access to the Kickbase league API.
package kickbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rewired-gh/kickbalance/internal/logger"
	"github.com/rewired-gh/kickbalance/internal/models"
	"golang.org/x/sync/semaphore"
)

// feedFilter restricts the ledger feed to purchases and sales.
const feedFilter = "12,2"

// Client provides access to the Kickbase API.
type Client struct {
	apiURL         string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
	limiter        *semaphore.Weighted
}

// ClientConfig holds retry, connection pool, and concurrency settings.
type ClientConfig struct {
	MaxRetries            int
	RetryDelayBase        time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	MaxConcurrentRequests int
}

// NewClient creates a new Kickbase client.
func NewClient(apiURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 8
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = cfg.IdleConnTimeout
	}

	return &Client{
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		limiter:        semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
	}
}

// Login authenticates with email and password and returns the session and the account's leagues.
func (c *Client) Login(ctx context.Context, email, password string) (models.Session, []models.League, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return models.Session{}, nil, fmt.Errorf("failed to encode login request: %w", err)
	}

	var resp loginResponse
	if err := c.do(ctx, models.Session{}, "login", http.MethodPost, "/user/login", nil, body, &resp); err != nil {
		return models.Session{}, nil, err
	}
	if resp.Token == "" {
		return models.Session{}, nil, &MalformedResponseError{Op: "login", Err: fmt.Errorf("missing token")}
	}

	leagues := make([]models.League, 0, len(resp.Leagues))
	for _, l := range resp.Leagues {
		leagues = append(leagues, models.League{ID: l.ID, Name: l.Name})
	}
	return models.NewSession(resp.Token), leagues, nil
}

// LeagueUsers lists the participants of a league.
func (c *Client) LeagueUsers(ctx context.Context, session models.Session, leagueID string) ([]models.User, error) {
	var resp usersResponse
	path := "/leagues/" + url.PathEscape(leagueID) + "/users"
	if err := c.do(ctx, session, "league users", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(resp.Users))
	for _, u := range resp.Users {
		users = append(users, models.User{ID: u.ID, Name: u.Name, Points: int64(u.Points)})
	}
	return users, nil
}

// FeedPage returns one page of the user's ledger feed starting at offset start.
// An empty slice with a nil error marks the end of the feed.
func (c *Client) FeedPage(ctx context.Context, session models.Session, leagueID, userID string, start int) ([]models.FeedEvent, error) {
	q := url.Values{}
	q.Set("filter", feedFilter)
	q.Set("start", strconv.Itoa(start))

	var resp feedResponse
	path := "/leagues/" + url.PathEscape(leagueID) + "/users/" + url.PathEscape(userID) + "/feed"
	if err := c.do(ctx, session, "feed", http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, err
	}

	events := make([]models.FeedEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, item.toModel())
	}
	return events, nil
}

// Roster returns the user's current players with their live market values.
func (c *Client) Roster(ctx context.Context, session models.Session, leagueID, userID string) ([]models.RosterPlayer, error) {
	var resp rosterResponse
	path := "/leagues/" + url.PathEscape(leagueID) + "/users/" + url.PathEscape(userID) + "/players"
	if err := c.do(ctx, session, "roster", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Players == nil {
		return nil, &MalformedResponseError{Op: "roster", Err: fmt.Errorf("missing players")}
	}

	players := make([]models.RosterPlayer, 0, len(resp.Players))
	for _, p := range resp.Players {
		players = append(players, p.toModel())
	}
	return players, nil
}

// MarketValues returns the market value time series of a player.
func (c *Client) MarketValues(ctx context.Context, session models.Session, leagueID, playerID string) ([]models.MarketValuePoint, error) {
	var resp statsResponse
	path := "/leagues/" + url.PathEscape(leagueID) + "/players/" + url.PathEscape(playerID) + "/stats"
	if err := c.do(ctx, session, "market values", http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}

	points := make([]models.MarketValuePoint, 0, len(resp.MarketValues))
	for _, mv := range resp.MarketValues {
		points = append(points, mv.toModel())
	}
	return points, nil
}

// do performs a request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, session models.Session, op, method, path string, query url.Values, body []byte, out any) error {
	u, err := url.Parse(c.apiURL + path)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	raw, err := c.doRequest(ctx, session, op, method, u.String(), body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &MalformedResponseError{Op: op, Err: err}
	}
	return nil
}

// doRequest performs an HTTP request with retry logic. Transport failures and 5xx responses are
// retried with linear backoff; other non-2xx statuses fail immediately.
func (c *Client) doRequest(ctx context.Context, session models.Session, op, method, urlStr string, body []byte) ([]byte, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		raw, retry, err := c.attempt(ctx, session, op, method, urlStr, body)
		if err == nil {
			return raw, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		logger.Debug("Retrying %s (attempt %d/%d): %v", op, i+1, c.maxRetries, err)
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) attempt(ctx context.Context, session models.Session, op, method, urlStr string, body []byte) ([]byte, bool, error) {
	if err := c.limiter.Acquire(ctx, 1); err != nil {
		return nil, false, err
	}
	defer c.limiter.Release(1)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session.Valid() {
		req.Header.Set("Authorization", "Bearer "+session.Token())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, &UpstreamError{Op: op, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, &UpstreamError{Op: op, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, &TransportError{Op: op, Err: err}
	}
	return raw, false, nil
}
