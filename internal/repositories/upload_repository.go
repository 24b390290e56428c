package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"multinet/internal/models"
)

const maxErrorLength = 500

// UploadRepository is the upload status record and, through Claim, the job
// queue the worker polls.
type UploadRepository struct {
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

func (r *UploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

func (r *UploadRepository) Get(ctx context.Context, id uuid.UUID) (*models.Upload, error) {
	var upload models.Upload
	err := r.db.WithContext(ctx).First(&upload, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &upload, nil
}

func (r *UploadRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.Upload, error) {
	if limit <= 0 {
		limit = 100
	}
	var uploads []models.Upload
	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&uploads).Error
	return uploads, err
}

// Claim moves up to limit pending uploads to processing and returns their
// ids. Concurrent workers never claim the same row.
func (r *UploadRepository) Claim(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
		WITH cte AS (
			SELECT id FROM uploads
			WHERE status = 'pending'
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT ?
		)
		UPDATE uploads u
		SET status = 'processing', started_at = now(), updated_at = now(),
			attempt_count = u.attempt_count + 1
		FROM cte WHERE u.id = cte.id
		RETURNING u.id`

	var raw []string
	if err := r.db.WithContext(ctx).Raw(query, limit).Scan(&raw).Error; err != nil {
		return nil, fmt.Errorf("claim uploads: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("claim uploads: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ErrAttemptSuperseded is returned when an upload attempt tries to record
// progress or an outcome after stale recovery handed the upload to another
// attempt.
var ErrAttemptSuperseded = errors.New("upload attempt superseded")

// Heartbeat marks attempt as alive. It reports false once the upload is no
// longer processing under that attempt.
func (r *UploadRepository) Heartbeat(ctx context.Context, id uuid.UUID, attempt int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Upload{}).
		Where("id = ? AND status = ? AND attempt_count = ?", id, models.UploadStatusProcessing, attempt).
		Update("updated_at", gorm.Expr("now()"))
	return result.RowsAffected == 1, result.Error
}

// MarkSucceeded stores the non-fatal issues of a committed upload.
func (r *UploadRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, attempt int, issues []models.Issue) error {
	return r.finish(ctx, id, attempt, models.UploadStatusSucceeded, issues, nil)
}

func (r *UploadRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempt int, issues []models.Issue, errMsgs []string) error {
	return r.finish(ctx, id, attempt, models.UploadStatusFailed, issues, errMsgs)
}

func (r *UploadRepository) finish(ctx context.Context, id uuid.UUID, attempt int, status models.UploadStatus, issues []models.Issue, errMsgs []string) error {
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return err
	}
	for i, msg := range errMsgs {
		errMsgs[i] = truncateError(msg)
	}
	errorsJSON, err := json.Marshal(errMsgs)
	if err != nil {
		return err
	}

	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Upload{}).
		Where("id = ? AND status = ? AND attempt_count = ?", id, models.UploadStatusProcessing, attempt).
		Updates(map[string]any{
			"status":         status,
			"issues":         datatypes.JSON(issuesJSON),
			"error_messages": datatypes.JSON(errorsJSON),
			"completed_at":   &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAttemptSuperseded
	}
	return nil
}

// CancelPending fails an upload that no worker has claimed yet. It reports
// false when the upload already left the pending state.
func (r *UploadRepository) CancelPending(ctx context.Context, id uuid.UUID) (bool, error) {
	errorsJSON, _ := json.Marshal([]string{"cancelled"})
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.Upload{}).
		Where("id = ? AND status = ?", id, models.UploadStatusPending).
		Updates(map[string]any{
			"status":         models.UploadStatusFailed,
			"error_messages": datatypes.JSON(errorsJSON),
			"completed_at":   &now,
		})
	return result.RowsAffected == 1, result.Error
}

// RecoverStale puts uploads whose worker stopped heartbeating for longer than
// threshold back to pending. The cutoff is computed by the database, the same
// clock Claim and Heartbeat stamp updated_at with.
func (r *UploadRepository) RecoverStale(ctx context.Context, threshold time.Duration) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Upload{}).
		Where("status = ? AND updated_at < now() - make_interval(secs => ?)",
			models.UploadStatusProcessing, threshold.Seconds()).
		Updates(map[string]any{
			"status":     models.UploadStatusPending,
			"started_at": nil,
		})
	return result.RowsAffected, result.Error
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLength {
		return msg[:maxErrorLength]
	}
	return msg
}
