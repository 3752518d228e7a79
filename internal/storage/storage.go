// Package storage provides SQLite-backed persistence for the durable season cache and projection history.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/kickbalance/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db             *sql.DB
	maxProjections int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/kickbalance/data.db.
func New(maxProjections int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "kickbalance", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxProjections: maxProjections}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS season_cache (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS projections (
			id                   TEXT PRIMARY KEY,
			batch_id             TEXT NOT NULL,
			league_id            TEXT NOT NULL,
			user_id              TEXT NOT NULL,
			user_name            TEXT NOT NULL,
			user_points          INTEGER NOT NULL DEFAULT 0,
			balance_min          INTEGER NOT NULL,
			balance_max          INTEGER NOT NULL,
			max_bid_min          INTEGER NOT NULL,
			max_bid_max          INTEGER NOT NULL,
			team_value_now       INTEGER NOT NULL,
			starting_team_value  INTEGER NOT NULL,
			net_transfer_balance INTEGER NOT NULL,
			computed_at          INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projections_league ON projections(league_id, computed_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Get implements cache.Durable.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM season_cache WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return value, true, nil
}

// Set implements cache.Durable. An existing entry is never overwritten.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO season_cache (key, value, created_at) VALUES (?,?,?)`,
		key, value, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

// SaveProjections records successful projections of one batch. Failed ones are skipped.
func (s *Storage) SaveProjections(ctx context.Context, projections []models.UserProjection) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, p := range projections {
		if p.Failed() {
			continue
		}
		pr := p.Projection
		_, err = tx.ExecContext(ctx, `
			INSERT INTO projections
				(id, batch_id, league_id, user_id, user_name, user_points,
				 balance_min, balance_max, max_bid_min, max_bid_max,
				 team_value_now, starting_team_value, net_transfer_balance, computed_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			p.ID, p.BatchID, p.LeagueID, p.User.ID, p.User.Name, p.User.Points,
			pr.Balance.Min, pr.Balance.Max, pr.MaxBid.Min, pr.MaxBid.Max,
			pr.TeamValueNow, pr.StartingTeamValue, pr.NetTransferBalance,
			p.ComputedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert projection: %w", err)
		}
	}

	return tx.Commit()
}

// LatestProjections returns the projections of the most recent batch for leagueID,
// ordered by max bid descending. An unknown league yields an empty slice.
func (s *Storage) LatestProjections(ctx context.Context, leagueID string) ([]models.UserProjection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectionCols+` FROM projections
		WHERE batch_id = (
			SELECT batch_id FROM projections WHERE league_id = ?
			ORDER BY computed_at DESC LIMIT 1
		)
		ORDER BY max_bid_max DESC, user_name ASC`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projections: %w", err)
	}
	defer rows.Close()

	projections := []models.UserProjection{}
	for rows.Next() {
		p, err := scanProjection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan projection: %w", err)
		}
		projections = append(projections, *p)
	}
	return projections, rows.Err()
}

// RotateProjections deletes whole batches, oldest first, until at most maxProjections rows
// remain. The newest batch of every league is always kept, so rotation never truncates the
// batch LatestProjections serves.
func (s *Storage) RotateProjections(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		WITH batches AS (
			SELECT batch_id, league_id, MAX(computed_at) AS at, COUNT(*) AS n
			FROM projections GROUP BY batch_id, league_id
		), ranked AS (
			SELECT batch_id,
				ROW_NUMBER() OVER (PARTITION BY league_id ORDER BY at DESC) AS league_rank,
				SUM(n) OVER (ORDER BY at DESC, batch_id ROWS UNBOUNDED PRECEDING) AS kept_rows
			FROM batches
		)
		DELETE FROM projections WHERE batch_id IN (
			SELECT batch_id FROM ranked WHERE league_rank > 1 AND kept_rows > ?
		)`, s.maxProjections)
	if err != nil {
		return fmt.Errorf("failed to rotate projections: %w", err)
	}
	return nil
}

const projectionCols = `id, batch_id, league_id, user_id, user_name, user_points,
	balance_min, balance_max, max_bid_min, max_bid_max,
	team_value_now, starting_team_value, net_transfer_balance, computed_at`

func scanProjection(scan func(...any) error) (*models.UserProjection, error) {
	var p models.UserProjection
	var computedAtNano int64
	pr := &p.Projection
	err := scan(
		&p.ID, &p.BatchID, &p.LeagueID, &p.User.ID, &p.User.Name, &p.User.Points,
		&pr.Balance.Min, &pr.Balance.Max, &pr.MaxBid.Min, &pr.MaxBid.Max,
		&pr.TeamValueNow, &pr.StartingTeamValue, &pr.NetTransferBalance,
		&computedAtNano,
	)
	if err != nil {
		return nil, err
	}
	p.ComputedAt = time.Unix(0, computedAtNano)
	return &p, nil
}
