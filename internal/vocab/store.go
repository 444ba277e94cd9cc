package vocab

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-lookup/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS vocabulary (
	term       TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store is the durable copy of the vocabulary in PostgreSQL. Every lookup
// instance rebuilds its index from it at startup.
type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

func NewStore(client *postgres.Client) *Store {
	return &Store{
		client: client,
		logger: slog.Default().With("component", "vocab-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("creating vocabulary table: %w", err)
		}
		return nil
	})
}

// ForEachTerm streams every stored term to fn in term order, from a single
// snapshot. An error from fn stops the scan and is returned.
func (s *Store) ForEachTerm(ctx context.Context, fn func(term string) error) error {
	return s.client.ReadTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT term FROM vocabulary ORDER BY term`)
		if err != nil {
			return fmt.Errorf("querying vocabulary: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var term string
			if err := rows.Scan(&term); err != nil {
				return fmt.Errorf("scanning term: %w", err)
			}
			if err := fn(term); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// UpsertTerms inserts terms, touching updated_at on the ones already stored.
func (s *Store) UpsertTerms(ctx context.Context, terms []string) (int64, error) {
	return s.exec(ctx, "upsert", `
		INSERT INTO vocabulary (term)
		SELECT unnest($1::text[])
		ON CONFLICT (term) DO UPDATE SET updated_at = NOW()`, dedupe(terms))
}

// DeleteTerms removes terms and returns how many rows existed.
func (s *Store) DeleteTerms(ctx context.Context, terms []string) (int64, error) {
	return s.exec(ctx, "delete", `DELETE FROM vocabulary WHERE term = ANY($1)`, dedupe(terms))
}

func (s *Store) exec(ctx context.Context, op, query string, terms []string) (int64, error) {
	var affected int64
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, pq.Array(terms))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("vocabulary %s of %d terms: %w", op, len(terms), err)
	}
	s.logger.Debug("vocabulary updated", "op", op, "terms", len(terms), "rows", affected)
	return affected, nil
}

// dedupe drops repeated terms, keeping first-seen order. A single INSERT ...
// ON CONFLICT DO UPDATE cannot touch the same row twice.
func dedupe(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
