package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides the identity and timestamp columns shared by the sync
// tables
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// setBase copies identity and timestamps from a domain entity
func (m *BaseModel) setBase(id uuid.UUID, createdAt, updatedAt time.Time) {
	m.ID = id
	m.CreatedAt = createdAt
	m.UpdatedAt = updatedAt
}
