package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes order access from weakest to strongest. A stronger scope
// implies the weaker ones.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// ScopeAllows reports whether a granted scope covers the required one.
func ScopeAllows(granted, required string) bool {
	rank := map[string]int{ScopeRead: 1, ScopeWrite: 2, ScopeAdmin: 3}
	g, ok := rank[granted]
	if !ok {
		return false
	}
	r, ok := rank[required]
	if !ok {
		return false
	}
	return g >= r
}

type JWTClaims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

type AuthRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Scope     string    `json:"scope"`
}

type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	ResetTime int64 `json:"reset_time"`
}
