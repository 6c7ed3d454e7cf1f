// Package apikey manages the keys that authorise index publishing. Only the
// SHA-256 digest of a key is stored. A key may be scoped to a set of source
// names, so a team can publish its own library's index and no other.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/3worlds/aot/pkg/errors"
	"github.com/3worlds/aot/pkg/postgres"
)

var (
	ErrInvalidKey = fmt.Errorf("%w: invalid api key", apperrors.ErrUnauthorized)
	ErrExpiredKey = fmt.Errorf("%w: api key expired", apperrors.ErrUnauthorized)
)

const (
	// KeyPrefix marks raw keys so they are recognisable in logs and configs.
	KeyPrefix = "msi_"
	// DefaultRateLimit is the publish requests per window granted to new keys.
	DefaultRateLimit = 60
)

// KeyInfo describes a stored key. An empty Sources allows every source.
type KeyInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	RateLimit  int        `json:"rate_limit"`
	Sources    []string   `json:"sources,omitempty"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Allows reports whether the key may publish the named source.
func (k *KeyInfo) Allows(source string) bool {
	return len(k.Sources) == 0 || slices.Contains(k.Sources, source)
}

// KeySpec describes a key to create.
type KeySpec struct {
	Name      string
	RateLimit int
	Sources   []string
	ExpiresAt *time.Time
}

// Validator checks presented keys against the api_keys table and
// administers keys for the msi keys command.
type Validator struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewValidator(db *postgres.Client) *Validator {
	return &Validator{
		db:     db,
		logger: slog.Default().With("component", "apikey"),
	}
}

const keyColumns = `id, name, rate_limit, sources, is_active, created_at, expires_at, last_used_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (KeyInfo, error) {
	var (
		k        KeyInfo
		expires  sql.NullTime
		lastUsed sql.NullTime
	)
	err := row.Scan(&k.ID, &k.Name, &k.RateLimit, pq.Array(&k.Sources), &k.IsActive, &k.CreatedAt, &expires, &lastUsed)
	if err != nil {
		return k, err
	}
	if expires.Valid {
		k.ExpiresAt = &expires.Time
	}
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	return k, nil
}

// Validate resolves a raw key. It returns ErrInvalidKey for unknown or
// revoked keys and ErrExpiredKey for expired ones, and stamps the key's
// last use.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	info, err := scanKey(v.db.DB.QueryRowContext(ctx,
		`UPDATE api_keys SET last_used_at = NOW()
		 WHERE key_hash = $1 AND is_active
		 RETURNING `+keyColumns,
		HashKey(rawKey),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("looking up api key: %w", err)
	}
	if info.ExpiresAt != nil && info.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpiredKey
	}
	return &info, nil
}

// CreateKey stores a new key and returns it. The raw key is never stored
// and cannot be shown again.
func (v *Validator) CreateKey(ctx context.Context, spec KeySpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("api key name is required")
	}
	if spec.RateLimit <= 0 {
		spec.RateLimit = DefaultRateLimit
	}
	rawKey, err := generateRawKey()
	if err != nil {
		return "", err
	}
	var expires sql.NullTime
	if spec.ExpiresAt != nil {
		expires = sql.NullTime{Time: *spec.ExpiresAt, Valid: true}
	}
	sources := spec.Sources
	if sources == nil {
		sources = []string{}
	}

	_, err = v.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, rate_limit, sources, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		HashKey(rawKey), spec.Name, spec.RateLimit, pq.Array(sources), expires,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	v.logger.Info("api key created", "name", spec.Name, "rate_limit", spec.RateLimit, "sources", spec.Sources)
	return rawKey, nil
}

func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	result, err := v.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1 AND is_active`,
		HashKey(rawKey),
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrInvalidKey
	}
	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns the active keys, newest first.
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := v.db.DB.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the hex SHA-256 digest of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}
