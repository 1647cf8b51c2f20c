package models

import "time"

// Appointment statuses. pending is the only non-terminal state: an appointment
// moves to done or cancelled exactly once and never leaves either.
const (
	AppointmentPending   = "pending"
	AppointmentDone      = "done"
	AppointmentCancelled = "cancelled"
)

// Appointment is a scheduled visit owned by a principal. Appointments whose
// scheduled date passes while still pending are cancelled automatically by
// the reconciler.
type Appointment struct {
	ID            string    `db:"id" json:"id"`
	PrincipalID   string    `db:"principal_id" json:"-"`
	PatientID     string    `db:"patient_id" json:"patient_id"`
	DoctorID      string    `db:"doctor_id" json:"doctor_id"`
	ScheduledDate time.Time `db:"scheduled_date" json:"scheduled_date"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
