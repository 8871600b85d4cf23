package models

import "time"

// User represents an application user stored in the users table. PasswordHash
// is nil for accounts created through an external identity provider.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	Name         *string   `db:"name" json:"name,omitempty"`
	Avatar       *string   `db:"avatar" json:"avatar,omitempty"`
	GoogleID     *string   `db:"google_id" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// PendingSignup holds a signup awaiting OTP verification. The OTP is stored
// hashed, like a password.
type PendingSignup struct {
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         *string   `db:"name" json:"name,omitempty"`
	OTPHash      string    `db:"otp_hash" json:"-"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PasswordReset holds an emailed reset OTP, keyed by email.
type PasswordReset struct {
	Email     string    `db:"email" json:"email"`
	OTPHash   string    `db:"otp_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
