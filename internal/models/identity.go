package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is one enrolled person. The embedding is immutable after
// enrollment; re-enrollment replaces the whole row.
type Identity struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Email       string    `json:"email" db:"email"`
	EmployeeID  string    `json:"employee_id" db:"employee_id"`
	Embedding   []float32 `json:"-" db:"embedding"`
	PortraitKey string    `json:"portrait_key" db:"portrait_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
