package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role enumerates the coarse platform roles. An account holds exactly one
// role; changes go through the role application workflow.
type Role string

const (
	RoleGuardian      Role = "guardian"
	RoleLearner       Role = "learner"
	RoleEducator      Role = "educator"
	RoleInstitution   Role = "institution"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleGuardian, RoleLearner, RoleEducator, RoleInstitution, RoleAdministrator:
		return true
	}
	return false
}

// AccountStatus enumerates the account lifecycle states.
type AccountStatus string

const (
	StatusActive         AccountStatus = "active"
	StatusPendingConsent AccountStatus = "pending_consent"
	StatusDisabled       AccountStatus = "disabled"
)

// Account is the identity record. Email is unique case-insensitively; callers
// must normalize with NormalizeEmail before lookups and writes.
type Account struct {
	ID           uuid.UUID     `json:"id"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	Name         string        `json:"name"`
	Phone        string        `json:"phone,omitempty"`
	Role         Role          `json:"role"`
	Status       AccountStatus `json:"status"`
	Language     string        `json:"language,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address so the uniqueness
// invariant holds regardless of how the caller typed it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RevocationRecord marks a token identifier as withdrawn until its natural
// expiry. Expired records are treated as absent so the table stays bounded.
type RevocationRecord struct {
	JTI       string
	OwnerID   uuid.UUID
	TokenHash string
	Status    RevocationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RevocationStatus only ever transitions active -> revoked.
type RevocationStatus string

const (
	RevocationActive  RevocationStatus = "active"
	RevocationRevoked RevocationStatus = "revoked"
)

// CodePurpose tags a verification code with the flow that requested it.
type CodePurpose string

const (
	PurposeRegister      CodePurpose = "register"
	PurposeResetPassword CodePurpose = "reset_password"
	PurposeVerifyEmail   CodePurpose = "verify_email"
)

// VerificationCode is a single-use numeric code scoped to (email, purpose).
type VerificationCode struct {
	ID        uuid.UUID
	Email     string
	Code      string
	Purpose   CodePurpose
	Used      bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Active reports whether the code can still be consumed at the given time.
func (c *VerificationCode) Active(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}
