package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access-token payload minted by the identity
// subsystem. The engine only validates tokens; it never issues them.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
