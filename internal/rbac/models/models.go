package models

import (
	"time"

	authmodels "eduid/internal/auth/models"

	"github.com/google/uuid"
)

// ApplicationStatus enumerates the role application state machine.
// pending is the only non-terminal state.
type ApplicationStatus string

const (
	StatusPending   ApplicationStatus = "pending"
	StatusApproved  ApplicationStatus = "approved"
	StatusRejected  ApplicationStatus = "rejected"
	StatusCancelled ApplicationStatus = "cancelled"
)

// HistoryAction enumerates recorded state transitions.
type HistoryAction string

const (
	ActionSubmitted HistoryAction = "submitted"
	ActionApproved  HistoryAction = "approved"
	ActionRejected  HistoryAction = "rejected"
	ActionCancelled HistoryAction = "cancelled"
)

// RoleApplication is a user-initiated request to change the account role.
// At most one pending application may exist per user.
type RoleApplication struct {
	ID              uuid.UUID         `json:"id"`
	UserID          uuid.UUID         `json:"user_id"`
	RequestedRole   authmodels.Role   `json:"requested_role"`
	Status          ApplicationStatus `json:"status"`
	Reason          string            `json:"reason,omitempty"`
	AppliedAt       time.Time         `json:"applied_at"`
	ReviewerID      *uuid.UUID        `json:"reviewer_id,omitempty"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
	ReviewerComment string            `json:"reviewer_comment,omitempty"`
}

// HistoryEntry is one row of the append-only audit trail, one per transition.
type HistoryEntry struct {
	ID            uuid.UUID     `json:"id"`
	ApplicationID uuid.UUID     `json:"application_id"`
	Action        HistoryAction `json:"action"`
	ActorID       uuid.UUID     `json:"actor_id"`
	Comment       string        `json:"comment,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ReviewDecision carries an administrator's verdict on a pending application.
// NewRole is written to the applicant's account when Approve is true; both
// writes happen inside one store transaction.
type ReviewDecision struct {
	ApplicationID uuid.UUID
	ReviewerID    uuid.UUID
	Approve       bool
	Comment       string
	ReviewedAt    time.Time
	UserID        uuid.UUID
	NewRole       authmodels.Role
}
