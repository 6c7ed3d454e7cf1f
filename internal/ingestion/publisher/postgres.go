package publisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/3worlds/aot/internal/ingestion"
	"github.com/3worlds/aot/internal/member"
	apperrors "github.com/3worlds/aot/pkg/errors"
	"github.com/3worlds/aot/pkg/postgres"
)

// PostgresRepository stores sources in index_sources and their entries in
// index_entries.
type PostgresRepository struct {
	db *postgres.Client
}

func NewPostgresRepository(db *postgres.Client) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) State(ctx context.Context, source string) (string, bool, error) {
	var (
		checksum  string
		announced bool
	)
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT checksum, announced FROM index_sources WHERE name = $1`, source).Scan(&checksum, &announced)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying checksum: %w", err)
	}
	return checksum, announced, nil
}

// MarkAnnounced flags the stored version as delivered to Kafka. A newer
// version saved in the meantime is left alone.
func (r *PostgresRepository) MarkAnnounced(ctx context.Context, source, checksum string) error {
	_, err := r.db.DB.ExecContext(ctx,
		`UPDATE index_sources SET announced = TRUE WHERE name = $1 AND checksum = $2`, source, checksum)
	if err != nil {
		return fmt.Errorf("marking %s announced: %w", source, err)
	}
	return nil
}

// Save replaces the source row and all its entries in one transaction.
// Entries are bulk loaded with COPY.
func (r *PostgresRepository) Save(ctx context.Context, source, checksum string, entries []member.Entry, warnings int) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO index_sources (name, checksum, entry_count, warnings, announced, published_at)
			VALUES ($1, $2, $3, $4, FALSE, NOW())
			ON CONFLICT (name) DO UPDATE
			SET checksum = EXCLUDED.checksum, entry_count = EXCLUDED.entry_count,
				warnings = EXCLUDED.warnings, announced = FALSE,
				published_at = EXCLUDED.published_at`,
			source, checksum, len(entries), warnings)
		if err != nil {
			return fmt.Errorf("upserting source: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries WHERE source = $1`, source); err != nil {
			return fmt.Errorf("clearing entries: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("index_entries",
			"source", "position", "package", "class", "label", "url"))
		if err != nil {
			return fmt.Errorf("preparing copy: %w", err)
		}
		for i, e := range entries {
			if _, err := stmt.ExecContext(ctx, source, i, e.Package, e.Class, e.Label, nullableString(e.URL)); err != nil {
				stmt.Close()
				return fmt.Errorf("copying entry %d: %w", i, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("flushing copy: %w", err)
		}
		return stmt.Close()
	})
}

func (r *PostgresRepository) List(ctx context.Context) ([]ingestion.SourceInfo, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT name, checksum, entry_count, warnings, published_at FROM index_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var sources []ingestion.SourceInfo
	for rows.Next() {
		var s ingestion.SourceInfo
		if err := rows.Scan(&s.Name, &s.Checksum, &s.Entries, &s.Warnings, &s.PublishedAt); err != nil {
			return nil, fmt.Errorf("scanning source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *PostgresRepository) Entries(ctx context.Context, source string) ([]member.Entry, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT package, class, label, url FROM index_entries WHERE source = $1 ORDER BY position`, source)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []member.Entry
	for rows.Next() {
		var e member.Entry
		var url sql.NullString
		if err := rows.Scan(&e.Package, &e.Class, &e.Label, &url); err != nil {
			return nil, fmt.Errorf("scanning entry row: %w", err)
		}
		e.URL = url.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("source %q: %w", source, apperrors.ErrSourceNotFound)
	}
	return entries, nil
}

// nullableString converts a Go string to a sql.NullString, treating the
// empty string as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
