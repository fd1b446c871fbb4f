package dto

import "github.com/google/uuid"

type IdentityResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	EmployeeID  string    `json:"employee_id"`
	PortraitURL string    `json:"portrait_url,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}

// IdentityDebugInfo reports the stored embedding's health for one identity.
type IdentityDebugInfo struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	EmployeeID      string    `json:"employee_id"`
	Email           string    `json:"email"`
	EmbeddingValid  bool      `json:"embedding_valid"`
	EmbeddingLength int       `json:"embedding_length"`
	PortraitKey     string    `json:"portrait_key"`
	CreatedAt       string    `json:"created_at"`
}
