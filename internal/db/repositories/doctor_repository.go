// doctor_repository.go implements thin single-row CRUD for doctor records.
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

// DoctorRepository handles doctor database operations
type DoctorRepository struct {
	db *sqlx.DB
}

// NewDoctorRepository creates a new DoctorRepository
func NewDoctorRepository(db *sqlx.DB) *DoctorRepository {
	return &DoctorRepository{db: db}
}

// Create inserts a doctor owned by the principal.
func (r *DoctorRepository) Create(ctx context.Context, d *models.Doctor) error {
	d.ID = uuid.New().String()
	d.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO doctors (id, principal_id, name, speciality, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, d.ID, d.PrincipalID, d.Name, d.Speciality, d.CreatedAt); err != nil {
		return fmt.Errorf("create doctor: %w", err)
	}
	return nil
}

// GetByID retrieves a doctor scoped to its owning principal.
func (r *DoctorRepository) GetByID(ctx context.Context, principalID, id string) (*models.Doctor, error) {
	var d models.Doctor
	query := `
		SELECT id, principal_id, name, speciality, created_at
		FROM doctors
		WHERE id = $1 AND principal_id = $2
	`
	if err := r.db.GetContext(ctx, &d, query, id, principalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get doctor %s: %w", id, err)
	}
	return &d, nil
}

// ListByPrincipal returns all doctors owned by a principal.
func (r *DoctorRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*models.Doctor, error) {
	query := `
		SELECT id, principal_id, name, speciality, created_at
		FROM doctors
		WHERE principal_id = $1
		ORDER BY created_at DESC
	`
	doctors := make([]*models.Doctor, 0)
	if err := r.db.SelectContext(ctx, &doctors, query, principalID); err != nil {
		return nil, fmt.Errorf("list doctors for principal %s: %w", principalID, err)
	}
	return doctors, nil
}

// Delete removes a doctor scoped to its owning principal.
func (r *DoctorRepository) Delete(ctx context.Context, principalID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM doctors WHERE id = $1 AND principal_id = $2`, id, principalID)
	if err != nil {
		return fmt.Errorf("delete doctor %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete doctor %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
