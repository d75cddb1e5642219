package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// SQLStore saves runs and records to a SQL database. It also serves as a
// shared discovered-URL cache.
type SQLStore struct {
	db     *DB
	logger *slog.Logger
}

// NewSQLStore creates a store on a migrated database.
func NewSQLStore(db *DB, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, logger: logger.With("component", "sql_store", "driver", db.Driver())}
}

func (s *SQLStore) Name() string { return "sql" }

// Save replaces everything stored for the snapshot's run.
func (s *SQLStore) Save(ctx context.Context, snap Snapshot) error {
	r := snap.Result
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"advisors", "crawl_pairs", "crawl_runs"} {
			if _, err := tx.ExecContext(ctx, s.db.Rebind("DELETE FROM "+table+" WHERE run_id = ?"), r.RunID); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		_, err := tx.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO crawl_runs (run_id, started_at, finished_at, interrupted, blocking_encounters, record_count)
			VALUES (?, ?, ?, ?, ?, ?)
		`), r.RunID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Interrupted, r.BlockingEncounters, len(r.Records))
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		pairStmt, err := tx.PrepareContext(ctx, s.db.Rebind(`
			INSERT INTO crawl_pairs (run_id, target, filter, status, outcome, record_count, pages_visited, blocking_encounters, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare pair insert: %w", err)
		}
		defer pairStmt.Close()
		for _, p := range r.Pairs {
			if _, err := pairStmt.ExecContext(ctx, r.RunID, p.Target, string(p.Filter), string(p.Status), string(p.Outcome),
				p.RecordCount, p.PagesVisited, p.BlockingEncounters, p.Error); err != nil {
				return fmt.Errorf("failed to insert pair %s/%s: %w", p.Target, p.Filter, err)
			}
		}

		recStmt, err := tx.PrepareContext(ctx, s.db.Rebind(`
			INSERT INTO advisors (run_id, position, name, phone, street, city, state, email, company, url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare record insert: %w", err)
		}
		defer recStmt.Close()
		for i, rec := range r.Records {
			if _, err := recStmt.ExecContext(ctx, r.RunID, i, rec.Name, rec.Phone, rec.Street, rec.City,
				rec.State, rec.Email, rec.Source, rec.URL); err != nil {
				return fmt.Errorf("failed to insert record %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Run saved", "run_id", r.RunID, "records", len(r.Records), "pairs", len(r.Pairs))
	return nil
}

// CountRecords returns the number of records stored for a run, optionally
// restricted to one company.
func (s *SQLStore) CountRecords(ctx context.Context, runID, company string) (int, error) {
	query := "SELECT COUNT(*) FROM advisors WHERE run_id = ?"
	args := []any{runID}
	if company != "" {
		query += " AND company = ?"
		args = append(args, company)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.db.Rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// Load returns every discovered URL.
func (s *SQLStore) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT target, url FROM discovered_urls")
	if err != nil {
		return nil, fmt.Errorf("failed to query discovered urls: %w", err)
	}
	defer rows.Close()

	urls := map[string]string{}
	for rows.Next() {
		var target, url string
		if err := rows.Scan(&target, &url); err != nil {
			return nil, fmt.Errorf("failed to scan discovered url: %w", err)
		}
		urls[target] = url
	}
	return urls, rows.Err()
}

// Store makes the table match urls: targets not in urls are deleted and the
// rest upserted.
func (s *SQLStore) Store(ctx context.Context, urls map[string]string) error {
	now := time.Now().UTC()
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		stale, err := staleTargets(ctx, tx, urls)
		if err != nil {
			return err
		}
		for _, target := range stale {
			if _, err := tx.ExecContext(ctx, s.db.Rebind("DELETE FROM discovered_urls WHERE target = ?"), target); err != nil {
				return fmt.Errorf("failed to drop url for %s: %w", target, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, s.db.Rebind(`
			INSERT INTO discovered_urls (target, url, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (target) DO UPDATE SET url = excluded.url, updated_at = excluded.updated_at
		`))
		if err != nil {
			return fmt.Errorf("failed to prepare url upsert: %w", err)
		}
		defer stmt.Close()
		for target, url := range urls {
			if _, err := stmt.ExecContext(ctx, target, url, now); err != nil {
				return fmt.Errorf("failed to store url for %s: %w", target, err)
			}
		}
		return nil
	})
}

func staleTargets(ctx context.Context, tx *sql.Tx, urls map[string]string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT target FROM discovered_urls")
	if err != nil {
		return nil, fmt.Errorf("failed to query discovered urls: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("failed to scan discovered url: %w", err)
		}
		if _, ok := urls[target]; !ok {
			stale = append(stale, target)
		}
	}
	return stale, rows.Err()
}
