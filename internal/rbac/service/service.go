package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	authmodels "eduid/internal/auth/models"
	"eduid/internal/platform/metrics"
	"eduid/internal/rbac/models"
	"eduid/internal/rbac/store/application"
	"eduid/internal/sentinel"
	dErrors "eduid/pkg/domain-errors"

	"github.com/google/uuid"
)

// Workflow failures. Each is wrapped into a domain error with the matching
// code so transports map them without string matching.
var (
	ErrAlreadyHasRole            = errors.New("account already holds the requested role")
	ErrPendingApplicationExists  = errors.New("a pending application already exists")
	ErrApplicationNotPending     = errors.New("application is not pending")
	ErrApplicationNotCancellable = errors.New("application not found or not cancellable")
	ErrNotAuthorized             = errors.New("administrator role required")
)

// ApplicationStore is the persistence contract for role applications.
// Error Contract: FindByID returns ErrNotFound (wrapped) when the application
// does not exist; Review returns ErrInvalidState when the application is no
// longer pending; Cancel returns ErrNotFound for every refusal.
type ApplicationStore interface {
	CreateWithHistory(ctx context.Context, app *models.RoleApplication, entry *models.HistoryEntry) error
	FindByID(ctx context.Context, applicationID uuid.UUID) (*models.RoleApplication, error)
	HasPending(ctx context.Context, userID uuid.UUID) (bool, error)
	ListPending(ctx context.Context) ([]*models.RoleApplication, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.RoleApplication, error)
	History(ctx context.Context, applicationID uuid.UUID) ([]*models.HistoryEntry, error)
	Review(ctx context.Context, decision models.ReviewDecision, entry *models.HistoryEntry) error
	Cancel(ctx context.Context, applicationID, userID uuid.UUID, entry *models.HistoryEntry) error
}

// AccountSource resolves actors and applicants.
type AccountSource interface {
	FindByID(ctx context.Context, accountID uuid.UUID) (*authmodels.Account, error)
}

// Service runs the role application workflow: apply, admin review, cancel,
// and the read projections.
type Service struct {
	apps     ApplicationStore
	accounts AccountSource
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the workflow logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables workflow metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs the workflow service.
func New(apps ApplicationStore, accounts AccountSource, opts ...Option) *Service {
	s := &Service{
		apps:     apps,
		accounts: accounts,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Apply submits a role change request for the account. Rejected when the
// account already holds the role or a pending application exists.
func (s *Service) Apply(ctx context.Context, userID uuid.UUID, role authmodels.Role, reason string) (*models.RoleApplication, error) {
	if !role.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}

	acct, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return nil, s.translateNotFound(err, "account not found")
	}
	if acct.Role == role {
		return nil, dErrors.Wrap(ErrAlreadyHasRole, dErrors.CodeConflict, ErrAlreadyHasRole.Error())
	}
	pending, err := s.apps.HasPending(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "check pending application")
	}
	if pending {
		return nil, dErrors.Wrap(ErrPendingApplicationExists, dErrors.CodeConflict, ErrPendingApplicationExists.Error())
	}

	now := s.now()
	app := &models.RoleApplication{
		ID:            uuid.New(),
		UserID:        userID,
		RequestedRole: role,
		Status:        models.StatusPending,
		Reason:        reason,
		AppliedAt:     now,
	}
	entry := s.historyEntry(app.ID, models.ActionSubmitted, userID, reason, now)
	if err := s.apps.CreateWithHistory(ctx, app, entry); err != nil {
		// The store enforces the single-pending invariant too; a concurrent
		// apply that slipped past HasPending lands here.
		if errors.Is(err, application.ErrPendingExists) {
			return nil, dErrors.Wrap(ErrPendingApplicationExists, dErrors.CodeConflict, ErrPendingApplicationExists.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create application")
	}

	s.logEvent(ctx, "role_application_submitted",
		"application_id", app.ID.String(),
		"user_id", userID.String(),
		"requested_role", string(role),
	)
	s.countTransition(string(models.ActionSubmitted))
	return app, nil
}

// Review approves or rejects a pending application. The caller is re-verified
// as administrator here, not only at the transport boundary. Approval writes
// the application status and the account role as one transaction.
func (s *Service) Review(ctx context.Context, applicationID, adminID uuid.UUID, approve bool, comment string) (*models.RoleApplication, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		return nil, s.translateNotFound(err, "application not found")
	}

	now := s.now()
	action := models.ActionRejected
	if approve {
		action = models.ActionApproved
	}
	decision := models.ReviewDecision{
		ApplicationID: applicationID,
		ReviewerID:    adminID,
		Approve:       approve,
		Comment:       comment,
		ReviewedAt:    now,
		UserID:        app.UserID,
		NewRole:       app.RequestedRole,
	}
	entry := s.historyEntry(applicationID, action, adminID, comment, now)
	if err := s.apps.Review(ctx, decision, entry); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.Wrap(ErrApplicationNotPending, dErrors.CodeConflict, ErrApplicationNotPending.Error())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "review application")
	}

	s.logEvent(ctx, "role_application_reviewed",
		"application_id", applicationID.String(),
		"reviewer_id", adminID.String(),
		"approved", approve,
	)
	s.countTransition(string(action))
	updated, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		return nil, s.translateNotFound(err, "application not found")
	}
	return updated, nil
}

// Cancel withdraws a pending application. Only the owner may cancel; every
// other case is reported as not cancellable rather than distinguishing
// unknown ids from foreign ones.
func (s *Service) Cancel(ctx context.Context, applicationID, userID uuid.UUID) error {
	entry := s.historyEntry(applicationID, models.ActionCancelled, userID, "", s.now())
	if err := s.apps.Cancel(ctx, applicationID, userID, entry); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(ErrApplicationNotCancellable, dErrors.CodeNotFound, ErrApplicationNotCancellable.Error())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "cancel application")
	}

	s.logEvent(ctx, "role_application_cancelled",
		"application_id", applicationID.String(),
		"user_id", userID.String(),
	)
	s.countTransition(string(models.ActionCancelled))
	return nil
}

// ListPending returns all pending applications, administrator-only.
func (s *Service) ListPending(ctx context.Context, adminID uuid.UUID) ([]*models.RoleApplication, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	apps, err := s.apps.ListPending(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list pending applications")
	}
	return apps, nil
}

// GetDetail returns one application. Visible to the owner and administrators.
func (s *Service) GetDetail(ctx context.Context, applicationID, requesterID uuid.UUID) (*models.RoleApplication, error) {
	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		return nil, s.translateNotFound(err, "application not found")
	}
	if app.UserID != requesterID {
		if err := s.requireAdmin(ctx, requesterID); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// GetHistory returns the audit trail for an application, administrator-only.
func (s *Service) GetHistory(ctx context.Context, applicationID, adminID uuid.UUID) ([]*models.HistoryEntry, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if _, err := s.apps.FindByID(ctx, applicationID); err != nil {
		return nil, s.translateNotFound(err, "application not found")
	}
	entries, err := s.apps.History(ctx, applicationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list application history")
	}
	return entries, nil
}

// ListForUser returns the user's applications, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.RoleApplication, error) {
	apps, err := s.apps.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list applications")
	}
	return apps, nil
}

// requireAdmin re-verifies the actor inside the operation. Trusting the outer
// gate alone would let a stale token act after a role downgrade.
func (s *Service) requireAdmin(ctx context.Context, actorID uuid.UUID) error {
	acct, err := s.accounts.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(ErrNotAuthorized, dErrors.CodeForbidden, ErrNotAuthorized.Error())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "resolve reviewer")
	}
	if acct.Role != authmodels.RoleAdministrator {
		return dErrors.Wrap(ErrNotAuthorized, dErrors.CodeForbidden, ErrNotAuthorized.Error())
	}
	return nil
}

func (s *Service) translateNotFound(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) historyEntry(applicationID uuid.UUID, action models.HistoryAction, actorID uuid.UUID, comment string, at time.Time) *models.HistoryEntry {
	return &models.HistoryEntry{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		Action:        action,
		ActorID:       actorID,
		Comment:       comment,
		CreatedAt:     at,
	}
}

func (s *Service) logEvent(ctx context.Context, event string, attributes ...any) {
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) countTransition(action string) {
	if s.metrics != nil {
		s.metrics.IncrementRoleApplications(action)
	}
}
