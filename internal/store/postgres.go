package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the credentials table definition, applied on connect.
const Schema = `
CREATE TABLE IF NOT EXISTS credentials (
	user_id       INTEGER PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	expires_in    INTEGER NOT NULL,
	token_type    TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	last_updated  TIMESTAMPTZ NOT NULL
)
`

// Postgres is the pgx-backed credential store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a connection pool, verifies connectivity and
// ensures the schema exists. The returned store owns the pool for the
// process lifetime; Close releases it.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: pinging database: %v", ErrUnavailable, err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Save upserts the singleton credential by its fixed key.
func (p *Postgres) Save(ctx context.Context, accessToken, refreshToken string, expiresIn int, tokenType string) (*Credential, error) {
	query := `
		INSERT INTO credentials (user_id, access_token, refresh_token, expires_in, token_type, is_active, last_updated)
		VALUES ($1, $2, $3, $4, $5, TRUE, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_in = EXCLUDED.expires_in,
			token_type = EXCLUDED.token_type,
			is_active = TRUE,
			last_updated = NOW()
		RETURNING user_id, access_token, refresh_token, expires_in, token_type, is_active, last_updated
	`
	var cred Credential
	err := p.pool.QueryRow(ctx, query,
		PublicUserID,
		accessToken,
		refreshToken,
		expiresIn,
		tokenType,
	).Scan(
		&cred.UserID,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.ExpiresIn,
		&cred.TokenType,
		&cred.IsActive,
		&cred.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: upserting credential: %v", ErrUnavailable, err)
	}
	return &cred, nil
}

// Get retrieves the active credential.
func (p *Postgres) Get(ctx context.Context) (*Credential, error) {
	query := `
		SELECT user_id, access_token, refresh_token, expires_in, token_type, is_active, last_updated
		FROM credentials
		WHERE user_id = $1 AND is_active = TRUE
	`
	var cred Credential
	err := p.pool.QueryRow(ctx, query, PublicUserID).Scan(
		&cred.UserID,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.ExpiresIn,
		&cred.TokenType,
		&cred.IsActive,
		&cred.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying credential: %v", ErrUnavailable, err)
	}
	return &cred, nil
}

// UpdateAccess merges a refreshed access token into the active record.
func (p *Postgres) UpdateAccess(ctx context.Context, upd AccessUpdate) (*Credential, error) {
	query := `
		UPDATE credentials
		SET access_token = $2, expires_in = $3, token_type = $4, last_updated = NOW()
		WHERE user_id = $1 AND is_active = TRUE
		RETURNING user_id, access_token, refresh_token, expires_in, token_type, is_active, last_updated
	`
	var cred Credential
	err := p.pool.QueryRow(ctx, query,
		PublicUserID,
		upd.AccessToken,
		upd.ExpiresIn,
		upd.TokenType,
	).Scan(
		&cred.UserID,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.ExpiresIn,
		&cred.TokenType,
		&cred.IsActive,
		&cred.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: updating credential: %v", ErrUnavailable, err)
	}
	return &cred, nil
}

// Deactivate soft-deletes the credential.
func (p *Postgres) Deactivate(ctx context.Context) error {
	query := `
		UPDATE credentials
		SET is_active = FALSE, last_updated = NOW()
		WHERE user_id = $1
	`
	result, err := p.pool.Exec(ctx, query, PublicUserID)
	if err != nil {
		return fmt.Errorf("%w: deactivating credential: %v", ErrUnavailable, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
