package models

import "time"

// Patient is a thin domain record owned by a principal. The gateway only does
// single-row CRUD on it; no schema validation beyond non-empty name.
type Patient struct {
	ID          string     `db:"id" json:"id"`
	PrincipalID string     `db:"principal_id" json:"-"`
	Name        string     `db:"name" json:"name"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Doctor is a thin domain record owned by a principal.
type Doctor struct {
	ID          string    `db:"id" json:"id"`
	PrincipalID string    `db:"principal_id" json:"-"`
	Name        string    `db:"name" json:"name"`
	Speciality  *string   `db:"speciality" json:"speciality,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
