package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims carried by a session token. There is no expiry:
// a token lives until its registry record is deleted.
type TokenClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// AccessToken is a session registry record
type AccessToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	IssuedAt  time.Time
}

// LoginLog is the audit row written on every successful login
type LoginLog struct {
	ID          int64
	UserID      int64
	Username    string
	IPAddress   string
	UserAgent   string
	CreatedDate time.Time
}
