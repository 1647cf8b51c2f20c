// appointment_repository.go implements AppointmentRepository, including the
// bulk expiry sweep used by the background reconciler.
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

// AppointmentRepository handles appointment database operations
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository creates a new AppointmentRepository
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// Create inserts a pending appointment.
func (r *AppointmentRepository) Create(ctx context.Context, appt *models.Appointment) error {
	appt.ID = uuid.New().String()
	appt.Status = models.AppointmentPending
	appt.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO appointments (id, principal_id, patient_id, doctor_id, scheduled_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		appt.ID, appt.PrincipalID, appt.PatientID, appt.DoctorID,
		appt.ScheduledDate, appt.Status, appt.CreatedAt,
	); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// GetByID retrieves an appointment scoped to its owning principal.
func (r *AppointmentRepository) GetByID(ctx context.Context, principalID, id string) (*models.Appointment, error) {
	var appt models.Appointment
	query := `
		SELECT id, principal_id, patient_id, doctor_id, scheduled_date, status, created_at
		FROM appointments
		WHERE id = $1 AND principal_id = $2
	`
	if err := r.db.GetContext(ctx, &appt, query, id, principalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get appointment %s: %w", id, err)
	}
	return &appt, nil
}

// ListByPrincipal returns all appointments owned by a principal, soonest first.
func (r *AppointmentRepository) ListByPrincipal(ctx context.Context, principalID string) ([]*models.Appointment, error) {
	query := `
		SELECT id, principal_id, patient_id, doctor_id, scheduled_date, status, created_at
		FROM appointments
		WHERE principal_id = $1
		ORDER BY scheduled_date ASC
	`
	appts := make([]*models.Appointment, 0)
	if err := r.db.SelectContext(ctx, &appts, query, principalID); err != nil {
		return nil, fmt.Errorf("list appointments for principal %s: %w", principalID, err)
	}
	return appts, nil
}

// Transition moves a pending appointment to done or cancelled. The WHERE
// clause enforces the state machine: done and cancelled are terminal, so a
// row that already left pending is simply not matched and ErrNotFound is
// returned rather than silently overwriting a terminal state.
func (r *AppointmentRepository) Transition(ctx context.Context, principalID, id, status string) error {
	if status != models.AppointmentDone && status != models.AppointmentCancelled {
		return fmt.Errorf("invalid appointment transition target: %s", status)
	}

	query := `
		UPDATE appointments
		SET status = $3
		WHERE id = $1 AND principal_id = $2 AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query, id, principalID, status)
	if err != nil {
		return fmt.Errorf("transition appointment %s to %s: %w", id, status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition appointment %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelExpired bulk-cancels every pending appointment whose scheduled date
// has passed and returns how many rows changed. Running it again immediately
// matches nothing, so the sweep is idempotent.
func (r *AppointmentRepository) CancelExpired(ctx context.Context) (int64, error) {
	query := `
		UPDATE appointments
		SET status = 'cancelled'
		WHERE scheduled_date < CURRENT_DATE AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("cancel expired appointments: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cancel expired appointments: rows affected: %w", err)
	}
	return n, nil
}
