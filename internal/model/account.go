package model

import "time"

type Account struct {
	ID                int64     `json:"id"`
	Email             string    `json:"email"`
	DisplayName       string    `json:"display_name"`
	PasswordHash      string    `json:"-"`
	Confirmed         bool      `json:"confirmed"`
	ConfirmationToken *string   `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewAccount holds the fields a caller supplies when creating an account.
// PasswordHash must already be hashed.
type NewAccount struct {
	Email             string
	DisplayName       string
	PasswordHash      string
	ConfirmationToken string
}

// Identity is what the login mechanism knows about an account: enough to
// materialize a session without re-checking the password.
type Identity struct {
	AccountID      int64
	Principal      string
	DisplayName    string
	CredentialHash string
	Authorities    []string
	Enabled        bool
}
