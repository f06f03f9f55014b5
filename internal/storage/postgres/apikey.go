package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playtopia/storefront/internal/auth"
)

var _ auth.KeyRepository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.KeyInfo, error) {
	var info auth.KeyInfo
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, key_hash, name FROM api_keys WHERE key_hash = $1 AND active`,
		hash,
	).Scan(&info.ID, &info.UserID, &info.KeyHash, &info.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrap(err, "api key not found")
		}
		return nil, errors.Wrap(err, "find api key by hash")
	}
	return &info, nil
}

// Insert stores a new API key hash for a user. Used by the seed tool.
func (r *APIKeyRepository) Insert(ctx context.Context, userID, keyHash, name string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO api_keys (user_id, key_hash, name) VALUES ($1, $2, $3)
		 ON CONFLICT (key_hash) DO NOTHING`,
		userID, keyHash, name,
	)
	if err != nil {
		return errors.Wrap(err, "insert api key")
	}
	return nil
}
