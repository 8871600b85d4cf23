package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshToken is the ledger record for one issued refresh token. The signed
// token string itself is the primary key. Revoked transitions false to true
// exactly once and is never reset; ReplacedByToken points at the token minted
// by the rotation that revoked this record, forming a singly linked chain per
// session lineage.
type RefreshToken struct {
	Token           string    `db:"token" json:"token"`
	UserID          string    `db:"user_id" json:"user_id"`
	IssuedAt        time.Time `db:"issued_at" json:"issued_at"`
	ExpiresAt       time.Time `db:"expires_at" json:"expires_at"`
	Revoked         bool      `db:"revoked" json:"revoked"`
	ReplacedByToken *string   `db:"replaced_by_token" json:"replaced_by_token,omitempty"`
	IPAddress       *string   `db:"ip_address" json:"ip_address,omitempty"`
}

// TokenPair bundles a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AccessClaims is the access token payload: subject id plus the registered
// time claims. Access tokens are stateless; verification never touches the
// ledger, so they cannot be revoked before natural expiry.
type AccessClaims struct {
	jwt.RegisteredClaims
}
