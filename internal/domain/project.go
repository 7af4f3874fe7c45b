package domain

import "time"

// Category is the local classification tag of a project.
type Category string

const (
	CategoryPhotoEditing Category = "photo-editing"
	CategoryClipping     Category = "clipping"
	CategoryBuilding     Category = "building"
	CategoryProduction   Category = "production"
)

// Project represents a Clockify project stored locally.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	WorkspaceID string    `json:"workspace_id"`
	Category    Category  `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
