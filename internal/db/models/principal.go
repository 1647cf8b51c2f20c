// Package models defines the database model types shared by the gateway and
// the collector. Each type corresponds to a table and carries struct tags for
// JSON serialization and sqlx row scanning. Models are pure data; query logic
// belongs in the repositories layer.
package models

import "time"

// Principal represents an authenticated account issuing API requests.
type Principal struct {
	ID    string `db:"id" json:"id"`
	Email string `db:"email" json:"email"`
	// APIKeyHash is the peppered SHA-256 digest of the principal's API key.
	// Nil until a credential has been issued. The raw key is never stored.
	APIKeyHash *string   `db:"api_key_hash" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
