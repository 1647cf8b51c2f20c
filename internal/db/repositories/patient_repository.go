// patient_repository.go implements thin single-row CRUD for patient records.
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

// PatientRepository handles patient database operations
type PatientRepository struct {
	db *sqlx.DB
}

// NewPatientRepository creates a new PatientRepository
func NewPatientRepository(db *sqlx.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// Create inserts a patient owned by the principal.
func (r *PatientRepository) Create(ctx context.Context, p *models.Patient) error {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO patients (id, principal_id, name, date_of_birth, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.PrincipalID, p.Name, p.DateOfBirth, p.CreatedAt); err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

// GetByID retrieves a patient scoped to its owning principal.
func (r *PatientRepository) GetByID(ctx context.Context, principalID, id string) (*models.Patient, error) {
	var p models.Patient
	query := `
		SELECT id, principal_id, name, date_of_birth, created_at
		FROM patients
		WHERE id = $1 AND principal_id = $2
	`
	if err := r.db.GetContext(ctx, &p, query, id, principalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return &p, nil
}

// ListByPrincipal returns all patients owned by a principal.
func (r *PatientRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*models.Patient, error) {
	query := `
		SELECT id, principal_id, name, date_of_birth, created_at
		FROM patients
		WHERE principal_id = $1
		ORDER BY created_at DESC
	`
	patients := make([]*models.Patient, 0)
	if err := r.db.SelectContext(ctx, &patients, query, principalID); err != nil {
		return nil, fmt.Errorf("list patients for principal %s: %w", principalID, err)
	}
	return patients, nil
}

// Update replaces a patient's mutable fields.
func (r *PatientRepository) Update(ctx context.Context, p *models.Patient) error {
	query := `
		UPDATE patients
		SET name = $3, date_of_birth = $4
		WHERE id = $1 AND principal_id = $2
	`
	res, err := r.db.ExecContext(ctx, query, p.ID, p.PrincipalID, p.Name, p.DateOfBirth)
	if err != nil {
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update patient %s: rows affected: %w", p.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a patient scoped to its owning principal.
func (r *PatientRepository) Delete(ctx context.Context, principalID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM patients WHERE id = $1 AND principal_id = $2`, id, principalID)
	if err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete patient %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
