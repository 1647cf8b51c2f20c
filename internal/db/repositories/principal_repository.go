// principal_repository.go implements PrincipalRepository, providing lookups by
// credential digest for the auth guard, credential rotation for the internal
// privileged API, and the all-or-nothing cascade delete of a principal's
// clinical records.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/medgate/medgate/internal/db/models"
)

// PrincipalRepository handles principal database operations
type PrincipalRepository struct {
	db *sqlx.DB
}

// NewPrincipalRepository creates a new PrincipalRepository
func NewPrincipalRepository(db *sqlx.DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

// Create inserts a new principal with no credential issued yet.
func (r *PrincipalRepository) Create(ctx context.Context, email string) (*models.Principal, error) {
	p := &models.Principal{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO principals (id, email, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.Email, p.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create principal: %w", err)
	}
	return p, nil
}

// GetByID retrieves a principal by id.
func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*models.Principal, error) {
	var p models.Principal
	query := `SELECT id, email, api_key_hash, created_at FROM principals WHERE id = $1`
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get principal %s: %w", id, err)
	}
	return &p, nil
}

// GetByDigest resolves a credential digest to a principal. This is the auth
// guard's fallback path on a key cache miss.
func (r *PrincipalRepository) GetByDigest(ctx context.Context, digest string) (*models.Principal, error) {
	var p models.Principal
	query := `SELECT id, email, api_key_hash, created_at FROM principals WHERE api_key_hash = $1`
	if err := r.db.GetContext(ctx, &p, query, digest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get principal by digest: %w", err)
	}
	return &p, nil
}

// SetCredential stores a new credential digest for the principal and returns
// the previous digest (empty string if none was issued). The caller is
// responsible for invalidating the previous digest's cache entry; a stale
// entry would keep authenticating the revoked key for up to the cache TTL.
func (r *PrincipalRepository) SetCredential(ctx context.Context, id, digest string) (oldDigest string, err error) {
	var prev sql.NullString
	query := `
		UPDATE principals p
		SET api_key_hash = $2
		FROM (SELECT api_key_hash FROM principals WHERE id = $1 FOR UPDATE) old
		WHERE p.id = $1
		RETURNING old.api_key_hash
	`
	if err := r.db.QueryRowContext(ctx, query, id, digest).Scan(&prev); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		if isUniqueViolation(err) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("set credential for principal %s: %w", id, err)
	}
	return prev.String, nil
}

// DeleteCascade removes a principal and every clinical record it owns in a
// single transaction, returning the principal's current credential digest so
// the caller can purge the key cache. Any failure rolls the whole cascade
// back.
func (r *PrincipalRepository) DeleteCascade(ctx context.Context, id string) (digest string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin cascade delete: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var hash sql.NullString
	if err = tx.QueryRowContext(ctx,
		`SELECT api_key_hash FROM principals WHERE id = $1 FOR UPDATE`, id,
	).Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return "", err
	}

	for _, query := range []string{
		`DELETE FROM appointments WHERE principal_id = $1`,
		`DELETE FROM patients WHERE principal_id = $1`,
		`DELETE FROM doctors WHERE principal_id = $1`,
		`DELETE FROM principals WHERE id = $1`,
	} {
		if _, err = tx.ExecContext(ctx, query, id); err != nil {
			return "", fmt.Errorf("cascade delete principal %s: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit cascade delete: %w", err)
	}
	return hash.String, nil
}
