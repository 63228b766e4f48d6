package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the available roles for the RBAC system. Account
// management itself lives outside this service; tokens are issued upstream and
// only verified here.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStaff   UserRole = "STAFF"
	RoleStudent UserRole = "STUDENT"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
