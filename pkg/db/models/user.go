package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/campuskit/schoolstock-backend/pkg/enums"
)

// User mirrors the identity provider's record so ledger entries can reference
// an actor. Credentials never live here.
type User struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email       string         `gorm:"column:email;not null;uniqueIndex:uq_users_email"`
	DisplayName string         `gorm:"column:display_name;not null"`
	Role        enums.UserRole `gorm:"column:role;not null;default:'member'"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
