package model

import "time"

// Hospital is a directory entry for one federated node. BaseURL is the
// network address the hospital client abstraction dials.
type Hospital struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	BaseURL   string    `json:"base_url" db:"base_url"`
	Region    string    `json:"region,omitempty" db:"region"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
