package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imageflow/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Store interface built
// on pgx/v5 connection pooling.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const runColumns = "id, workflow_id, prompt, parameter_blob, status, created_at, updated_at"

func scanRun(row pgx.Row) (*models.Run, error) {
	var run models.Run
	err := row.Scan(&run.ID, &run.WorkflowID, &run.Prompt, &run.ParameterBlob,
		&run.Status, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateRun inserts a run and its images in one transaction.
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("create run: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, workflow_id, prompt, parameter_blob, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.WorkflowID, run.Prompt, run.ParameterBlob, run.Status,
		run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	for _, img := range run.Images {
		if err := insertRunImage(ctx, tx, img); err != nil {
			return fmt.Errorf("create run: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func insertRunImage(ctx context.Context, tx pgx.Tx, img *models.RunImage) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO run_images (id, run_id, ordinal, asset_uri, thumb_uri, status, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		img.ID, img.RunID, img.Ordinal, img.AssetURI, img.ThumbURI,
		img.Status, img.Notes, img.CreatedAt)
	return err
}

// GetRun retrieves a run with its images ordered by ordinal.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	run.Images, err = s.loadImages(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) loadImages(ctx context.Context, runID string) ([]*models.RunImage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, run_id, ordinal, asset_uri, thumb_uri, status, notes, created_at
		 FROM run_images WHERE run_id = $1 ORDER BY ordinal ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []*models.RunImage{}
	for rows.Next() {
		var img models.RunImage
		err := rows.Scan(&img.ID, &img.RunID, &img.Ordinal, &img.AssetURI,
			&img.ThumbURI, &img.Status, &img.Notes, &img.CreatedAt)
		if err != nil {
			return nil, err
		}
		images = append(images, &img)
	}
	return images, rows.Err()
}

// ListRuns returns runs matching any of the given statuses, newest first.
// Posted runs are archived and never listed.
func (s *PostgresStore) ListRuns(ctx context.Context, statuses []models.RunStatus) ([]*models.Run, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}

	rows, err := s.db.Query(ctx,
		"SELECT "+runColumns+` FROM runs
		 WHERE status = ANY($1) AND status <> 'posted'
		 ORDER BY created_at DESC`, values)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	for _, run := range runs {
		if run.Images, err = s.loadImages(ctx, run.ID); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
	}
	return runs, nil
}

// CountRunsByStatus counts runs currently in the given status.
func (s *PostgresStore) CountRunsByStatus(ctx context.Context, status models.RunStatus) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM runs WHERE status = $1", status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}

// UpdateRunStatus sets a run's status and bumps updated_at.
func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id string, status models.RunStatus) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE runs SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchRun bumps a run's updated_at without changing its status.
func (s *PostgresStore) TouchRun(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE runs SET updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("touch run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddRunImages appends images to a run preserving their ordinals.
func (s *PostgresStore) AddRunImages(ctx context.Context, runID string, images []*models.RunImage) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("add run images: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		"UPDATE runs SET updated_at = NOW() WHERE id = $1", runID)
	if err != nil {
		return fmt.Errorf("add run images: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	for _, img := range images {
		if err := insertRunImage(ctx, tx, img); err != nil {
			return fmt.Errorf("add run images: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetRunImage retrieves an image scoped to its run.
func (s *PostgresStore) GetRunImage(ctx context.Context, runID, imageID string) (*models.RunImage, error) {
	var img models.RunImage
	err := s.db.QueryRow(ctx,
		`SELECT id, run_id, ordinal, asset_uri, thumb_uri, status, notes, created_at
		 FROM run_images WHERE id = $1 AND run_id = $2`, imageID, runID).
		Scan(&img.ID, &img.RunID, &img.Ordinal, &img.AssetURI,
			&img.ThumbURI, &img.Status, &img.Notes, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run image: %w", err)
	}
	return &img, nil
}

// GetRunImageByID retrieves an image by id alone.
func (s *PostgresStore) GetRunImageByID(ctx context.Context, imageID string) (*models.RunImage, error) {
	var img models.RunImage
	err := s.db.QueryRow(ctx,
		`SELECT id, run_id, ordinal, asset_uri, thumb_uri, status, notes, created_at
		 FROM run_images WHERE id = $1`, imageID).
		Scan(&img.ID, &img.RunID, &img.Ordinal, &img.AssetURI,
			&img.ThumbURI, &img.Status, &img.Notes, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run image: %w", err)
	}
	return &img, nil
}

// SetRunImageStatus updates an image's status; notes are overwritten only
// when a new value is supplied.
func (s *PostgresStore) SetRunImageStatus(ctx context.Context, imageID string, status models.RunImageStatus, notes *string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE run_images SET status = $2, notes = COALESCE($3, notes) WHERE id = $1",
		imageID, status, notes)
	if err != nil {
		return fmt.Errorf("set run image status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimNextQueuedRun atomically claims the oldest queued run. FOR UPDATE
// SKIP LOCKED keeps the claim safe even if a second worker is ever pointed
// at the same database.
func (s *PostgresStore) ClaimNextQueuedRun(ctx context.Context) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(ctx, `
		UPDATE runs
		SET status = 'generating', updated_at = NOW()
		WHERE id = (
			SELECT id FROM runs
			WHERE status = 'queued'
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+runColumns))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("claim queued run: %w", err)
	}
	return run, nil
}

// ListStuckRuns returns generating runs that have not been touched for at
// least olderThan, oldest first.
func (s *PostgresStore) ListStuckRuns(ctx context.Context, olderThan time.Duration) ([]*models.Run, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.Query(ctx,
		"SELECT "+runColumns+` FROM runs
		 WHERE status = 'generating' AND updated_at < $1
		 ORDER BY updated_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list stuck runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CreateApproval inserts an approval audit record.
func (s *PostgresStore) CreateApproval(ctx context.Context, approval *models.RunImageApproval) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO run_image_approvals
		 (id, run_image_id, approved_by, notes, approved_at, webhook_status, webhook_attempts, webhook_last_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		approval.ID, approval.RunImageID, approval.ApprovedBy, approval.Notes,
		approval.ApprovedAt, approval.WebhookStatus, approval.WebhookAttempts,
		approval.WebhookLastError)
	if err != nil {
		return fmt.Errorf("create approval: %w", err)
	}
	return nil
}

// GetApproval retrieves an approval by id.
func (s *PostgresStore) GetApproval(ctx context.Context, id string) (*models.RunImageApproval, error) {
	var a models.RunImageApproval
	err := s.db.QueryRow(ctx,
		`SELECT id, run_image_id, approved_by, notes, approved_at, webhook_status, webhook_attempts, webhook_last_error
		 FROM run_image_approvals WHERE id = $1`, id).
		Scan(&a.ID, &a.RunImageID, &a.ApprovedBy, &a.Notes, &a.ApprovedAt,
			&a.WebhookStatus, &a.WebhookAttempts, &a.WebhookLastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return &a, nil
}

// IncrementApprovalWebhookAttempts adds one delivery attempt.
func (s *PostgresStore) IncrementApprovalWebhookAttempts(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE run_image_approvals SET webhook_attempts = webhook_attempts + 1 WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("increment approval attempts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetApprovalWebhookResult records the outcome of the last delivery attempt.
func (s *PostgresStore) SetApprovalWebhookResult(ctx context.Context, id string, status models.WebhookStatus, lastError *string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE run_image_approvals SET webhook_status = $2, webhook_last_error = $3 WHERE id = $1",
		id, status, lastError)
	if err != nil {
		return fmt.Errorf("set approval webhook result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateLinkSubmission inserts a link submission.
func (s *PostgresStore) CreateLinkSubmission(ctx context.Context, submission *models.LinkSubmission) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO link_submissions
		 (id, url, source_url, client_ip, user_agent, created_at, webhook_status, webhook_attempts, webhook_last_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		submission.ID, submission.URL, submission.SourceURL, submission.ClientIP,
		submission.UserAgent, submission.CreatedAt, submission.WebhookStatus,
		submission.WebhookAttempts, submission.WebhookLastError)
	if err != nil {
		return fmt.Errorf("create link submission: %w", err)
	}
	return nil
}

// GetLinkSubmission retrieves a link submission by id.
func (s *PostgresStore) GetLinkSubmission(ctx context.Context, id string) (*models.LinkSubmission, error) {
	var sub models.LinkSubmission
	err := s.db.QueryRow(ctx,
		`SELECT id, url, source_url, client_ip, user_agent, created_at, webhook_status, webhook_attempts, webhook_last_error
		 FROM link_submissions WHERE id = $1`, id).
		Scan(&sub.ID, &sub.URL, &sub.SourceURL, &sub.ClientIP, &sub.UserAgent,
			&sub.CreatedAt, &sub.WebhookStatus, &sub.WebhookAttempts, &sub.WebhookLastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get link submission: %w", err)
	}
	return &sub, nil
}

// ListLinkSubmissions returns submissions newest first, up to limit.
func (s *PostgresStore) ListLinkSubmissions(ctx context.Context, limit int) ([]*models.LinkSubmission, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, url, source_url, client_ip, user_agent, created_at, webhook_status, webhook_attempts, webhook_last_error
		 FROM link_submissions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list link submissions: %w", err)
	}
	defer rows.Close()

	subs := []*models.LinkSubmission{}
	for rows.Next() {
		var sub models.LinkSubmission
		err := rows.Scan(&sub.ID, &sub.URL, &sub.SourceURL, &sub.ClientIP,
			&sub.UserAgent, &sub.CreatedAt, &sub.WebhookStatus,
			&sub.WebhookAttempts, &sub.WebhookLastError)
		if err != nil {
			return nil, fmt.Errorf("list link submissions: %w", err)
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// IncrementLinkWebhookAttempts adds one delivery attempt.
func (s *PostgresStore) IncrementLinkWebhookAttempts(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE link_submissions SET webhook_attempts = webhook_attempts + 1 WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("increment link attempts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLinkWebhookResult records the outcome of the last delivery attempt.
func (s *PostgresStore) SetLinkWebhookResult(ctx context.Context, id string, status models.WebhookStatus, lastError *string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE link_submissions SET webhook_status = $2, webhook_last_error = $3 WHERE id = $1",
		id, status, lastError)
	if err != nil {
		return fmt.Errorf("set link webhook result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
