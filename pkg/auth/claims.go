package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campuskit/schoolstock-backend/pkg/enums"
)

// AccessTokenClaims is the typed shape of tokens minted by the school's
// identity provider. This service only verifies them.
type AccessTokenClaims struct {
	UserID      uuid.UUID      `json:"user_id"`
	Email       string         `json:"email,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	Role        enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}
