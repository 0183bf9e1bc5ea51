package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	authmodels "eduid/internal/auth/models"
	"eduid/internal/rbac/models"
	"eduid/internal/sentinel"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations. A partial unique index on (user_id) WHERE status='pending'
// enforces the single-pending invariant under concurrent applies.
const uniqueViolation = "23505"

// PostgresStore persists role applications and their audit history.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed application store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateWithHistory(ctx context.Context, app *models.RoleApplication, entry *models.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create application tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO role_applications (id, user_id, requested_role, status, reason, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, app.ID, app.UserID, string(app.RequestedRole), string(app.Status), app.Reason, app.AppliedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrPendingExists
		}
		return fmt.Errorf("create application: %w", err)
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create application: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, applicationID uuid.UUID) (*models.RoleApplication, error) {
	app, err := scanApplication(s.db.QueryRowContext(ctx, selectApplication+` WHERE id = $1`, applicationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) HasPending(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM role_applications WHERE user_id = $1 AND status = 'pending')`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending application: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*models.RoleApplication, error) {
	return s.list(ctx, selectApplication+` WHERE status = 'pending' ORDER BY applied_at ASC`)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.RoleApplication, error) {
	return s.list(ctx, selectApplication+` WHERE user_id = $1 ORDER BY applied_at DESC`, userID)
}

func (s *PostgresStore) History(ctx context.Context, applicationID uuid.UUID) ([]*models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application_id, action, actor_id, comment, created_at
		FROM role_application_history
		WHERE application_id = $1
		ORDER BY created_at ASC
	`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list application history: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []*models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		var action string
		if err := rows.Scan(&e.ID, &e.ApplicationID, &action, &e.ActorID, &e.Comment, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.Action = models.HistoryAction(action)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate application history: %w", err)
	}
	return entries, nil
}

// Review applies an administrator decision as one transaction: a conditional
// transition on status='pending', the account role write when approved, and
// the audit row. Two admins racing on the same application cannot both
// succeed; the loser sees zero rows and gets ErrInvalidState.
func (s *PostgresStore) Review(ctx context.Context, decision models.ReviewDecision, entry *models.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin review tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	status := models.StatusRejected
	if decision.Approve {
		status = models.StatusApproved
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE role_applications
		SET status = $2, reviewer_id = $3, reviewed_at = $4, reviewer_comment = $5
		WHERE id = $1 AND status = 'pending'
	`, decision.ApplicationID, string(status), decision.ReviewerID, decision.ReviewedAt, decision.Comment)
	if err != nil {
		return fmt.Errorf("transition application: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition application rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("application not pending: %w", sentinel.ErrInvalidState)
	}

	if decision.Approve {
		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts SET role = $2, updated_at = $3 WHERE id = $1
		`, decision.UserID, string(decision.NewRole), decision.ReviewedAt); err != nil {
			return fmt.Errorf("apply approved role: %w", err)
		}
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit review: %w", err)
	}
	return nil
}

// Cancel transitions a pending application to cancelled, owner-only. Zero
// affected rows covers every refusal: wrong owner, unknown id, or a terminal
// status.
func (s *PostgresStore) Cancel(ctx context.Context, applicationID, userID uuid.UUID, entry *models.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE role_applications
		SET status = 'cancelled'
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
	`, applicationID, userID)
	if err != nil {
		return fmt.Errorf("cancel application: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel application rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("application not cancellable: %w", sentinel.ErrNotFound)
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, entry *models.HistoryEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO role_application_history (id, application_id, action, actor_id, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.ApplicationID, string(entry.Action), entry.ActorID, entry.Comment, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.RoleApplication, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var apps []*models.RoleApplication
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return apps, nil
}

const selectApplication = `
	SELECT id, user_id, requested_role, status, reason, applied_at, reviewer_id, reviewed_at, reviewer_comment
	FROM role_applications`

type applicationRow interface {
	Scan(dest ...any) error
}

func scanApplication(row applicationRow) (*models.RoleApplication, error) {
	var app models.RoleApplication
	var requestedRole, status string
	var reviewerID uuid.NullUUID
	var reviewedAt sql.NullTime
	var comment sql.NullString
	if err := row.Scan(
		&app.ID,
		&app.UserID,
		&requestedRole,
		&status,
		&app.Reason,
		&app.AppliedAt,
		&reviewerID,
		&reviewedAt,
		&comment,
	); err != nil {
		return nil, err
	}
	app.RequestedRole = authmodels.Role(requestedRole)
	app.Status = models.ApplicationStatus(status)
	if reviewerID.Valid {
		id := reviewerID.UUID
		app.ReviewerID = &id
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		app.ReviewedAt = &t
	}
	if comment.Valid {
		app.ReviewerComment = comment.String
	}
	return &app, nil
}
