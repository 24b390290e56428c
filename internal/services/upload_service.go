package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"multinet/internal/apperrors"
	"multinet/internal/blob"
	"multinet/internal/ingest"
	"multinet/internal/metrics"
	"multinet/internal/models"
	"multinet/internal/repositories"
	"multinet/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UploadStore persists upload records and serves them as a work queue.
type UploadStore interface {
	Create(ctx context.Context, upload *models.Upload) error
	Get(ctx context.Context, id uuid.UUID) (*models.Upload, error)
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.Upload, error)
	Claim(ctx context.Context, limit int) ([]uuid.UUID, error)
	Heartbeat(ctx context.Context, id uuid.UUID, attempt int) (bool, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID, attempt int, issues []models.Issue) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempt int, issues []models.Issue, errMsgs []string) error
	CancelPending(ctx context.Context, id uuid.UUID) (bool, error)
	RecoverStale(ctx context.Context, threshold time.Duration) (int64, error)
}

// CancelFlags records cancellation requests for running uploads.
type CancelFlags interface {
	RequestCancel(ctx context.Context, uploadID uuid.UUID) error
	IsCancelled(ctx context.Context, uploadID uuid.UUID) (bool, error)
	ClearCancel(ctx context.Context, uploadID uuid.UUID) error
}

const (
	cancelledMessage = "cancelled"

	defaultHeartbeatInterval = 30 * time.Second
)

type UploadService struct {
	uploads   UploadStore
	flags     CancelFlags
	blobs     blob.Store
	meta      MetadataStore
	graphs    GraphStore
	coord     *Coordinator
	pipeline  *ingest.Pipeline
	heartbeat time.Duration
	log       *zap.Logger
}

type UploadOption func(*UploadService)

// WithHeartbeat sets how often a processing upload stamps updated_at. It must
// stay well below the worker's stale threshold.
func WithHeartbeat(every time.Duration) UploadOption {
	return func(s *UploadService) {
		if every > 0 {
			s.heartbeat = every
		}
	}
}

func NewUploadService(
	uploads UploadStore,
	flags CancelFlags,
	blobs blob.Store,
	meta MetadataStore,
	graphs GraphStore,
	coord *Coordinator,
	pipeline *ingest.Pipeline,
	opts ...UploadOption,
) *UploadService {
	s := &UploadService{
		uploads:   uploads,
		flags:     flags,
		blobs:     blobs,
		meta:      meta,
		graphs:    graphs,
		coord:     coord,
		pipeline:  pipeline,
		heartbeat: defaultHeartbeatInterval,
		log:       logger.Get().Named("uploads"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SubmitUploadRequest struct {
	Workspace string
	Principal string
	BlobRef   string
	Request   ingest.Request
}

// Submit validates the request and queues it. Processing happens in the
// worker.
func (s *UploadService) Submit(ctx context.Context, req SubmitUploadRequest) (*models.Upload, error) {
	if err := req.Request.Validate(); err != nil {
		return nil, apperrors.Invalid(err.Error())
	}
	if req.BlobRef == "" {
		return nil, apperrors.Invalid("blob reference is required")
	}
	ws, err := s.meta.GetWorkspace(ctx, req.Workspace)
	if err != nil {
		return nil, storeError("submit_upload", "look up workspace", err)
	}
	if ws == nil {
		return nil, apperrors.NotFound("workspace " + req.Workspace)
	}

	format, _ := ingest.ParseFormat(string(req.Request.Format))
	req.Request.Format = format
	options, err := json.Marshal(req.Request)
	if err != nil {
		return nil, fmt.Errorf("encode upload options: %w", err)
	}

	upload := &models.Upload{
		WorkspaceID: ws.ID,
		Principal:   req.Principal,
		DataType:    string(format),
		TargetName:  req.Request.Target,
		BlobRef:     req.BlobRef,
		Options:     datatypes.JSON(options),
	}
	if err := s.uploads.Create(ctx, upload); err != nil {
		return nil, storeError("submit_upload", "create upload", err)
	}

	s.log.Info("Upload queued",
		zap.String("upload_id", upload.ID.String()),
		zap.String("workspace", ws.Name),
		zap.String("format", upload.DataType),
		zap.String("target", upload.TargetName))
	return upload, nil
}

// SubmitFile stores body in the blob store and queues it.
func (s *UploadService) SubmitFile(ctx context.Context, req SubmitUploadRequest, filename string, body io.Reader, size int64) (*models.Upload, error) {
	if err := req.Request.Validate(); err != nil {
		return nil, apperrors.Invalid(err.Error())
	}
	key := path.Join("uploads", req.Workspace, uuid.NewString(), path.Base("/"+filename))
	ref, err := s.blobs.Put(ctx, key, body, size)
	if err != nil {
		return nil, storeError("submit_upload", "store file", err)
	}
	req.BlobRef = ref
	return s.Submit(ctx, req)
}

func (s *UploadService) Get(ctx context.Context, workspace string, id uuid.UUID) (*models.Upload, error) {
	ws, err := s.meta.GetWorkspace(ctx, workspace)
	if err != nil {
		return nil, storeError("get_upload", "look up workspace", err)
	}
	if ws == nil {
		return nil, apperrors.NotFound("workspace " + workspace)
	}
	upload, err := s.uploads.Get(ctx, id)
	if err != nil {
		return nil, storeError("get_upload", "load upload", err)
	}
	if upload == nil || upload.WorkspaceID != ws.ID {
		return nil, apperrors.NotFound("upload " + id.String())
	}
	return upload, nil
}

func (s *UploadService) List(ctx context.Context, workspace string, limit int) ([]models.Upload, error) {
	ws, err := s.meta.GetWorkspace(ctx, workspace)
	if err != nil {
		return nil, storeError("list_uploads", "look up workspace", err)
	}
	if ws == nil {
		return nil, apperrors.NotFound("workspace " + workspace)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	uploads, err := s.uploads.ListByWorkspace(ctx, ws.ID, limit)
	if err != nil {
		return nil, storeError("list_uploads", "list uploads", err)
	}
	return uploads, nil
}

// Cancel flags a running upload. A pending upload is failed immediately.
func (s *UploadService) Cancel(ctx context.Context, workspace string, id uuid.UUID) (*models.Upload, error) {
	upload, err := s.Get(ctx, workspace, id)
	if err != nil {
		return nil, err
	}
	if upload.Status.Terminal() {
		return nil, apperrors.Conflict("cancel_upload", id.String(), "upload already finished")
	}
	if err := s.flags.RequestCancel(ctx, id); err != nil {
		return nil, storeError("cancel_upload", "set cancel flag", err)
	}
	if upload.Status == models.UploadStatusPending {
		cancelled, err := s.uploads.CancelPending(ctx, id)
		if err != nil {
			return nil, storeError("cancel_upload", "fail pending upload", err)
		}
		if cancelled {
			metrics.Uploads.WithLabelValues(string(models.UploadStatusFailed)).Inc()
		}
	}
	s.log.Info("Upload cancellation requested", zap.String("upload_id", id.String()))
	return s.uploads.Get(ctx, id)
}

// keyResolver looks up committed node keys in one namespace.
type keyResolver struct {
	graphs    GraphStore
	namespace string
}

func (r keyResolver) ExistingKeys(ctx context.Context, table string, keys []string) (map[string]struct{}, error) {
	return r.graphs.ExistingKeys(ctx, r.namespace, table, keys)
}

// Process runs a claimed upload: read the blob, ingest, commit. Outcomes are
// recorded on the upload; the returned error is only for failures to record
// them, for shutdown, in which case the upload is left for recovery, or for
// losing the upload to a newer attempt.
func (s *UploadService) Process(ctx context.Context, id uuid.UUID) error {
	log := s.log.With(zap.String("upload_id", id.String()))

	upload, err := s.uploads.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load upload: %w", err)
	}
	if upload == nil {
		return fmt.Errorf("upload %s not found", id)
	}
	attempt := upload.AttemptCount

	ctx, abandon := context.WithCancelCause(ctx)
	defer abandon(nil)
	stopHeartbeat := s.keepAlive(ctx, upload.ID, attempt, abandon)
	defer stopHeartbeat()
	ws, err := s.meta.GetWorkspaceByID(ctx, upload.WorkspaceID)
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	if ws == nil {
		return s.fail(ctx, upload, nil, apperrors.NotFound("workspace "+upload.WorkspaceID.String()))
	}

	var req ingest.Request
	if err := json.Unmarshal(upload.Options, &req); err != nil {
		return s.fail(ctx, upload, nil, apperrors.Invalid("stored upload options are unreadable: "+err.Error()))
	}

	userCancelled := func(ctx context.Context) (bool, error) {
		return s.flags.IsCancelled(ctx, id)
	}

	started := time.Now()
	rc, err := s.blobs.Open(ctx, upload.BlobRef)
	if err != nil {
		return s.fail(ctx, upload, nil, err)
	}
	defer rc.Close()

	payload, issues, err := s.pipeline.Ingest(ctx, rc, req, keyResolver{graphs: s.graphs, namespace: ws.Name}, userCancelled)
	if err != nil {
		return s.fail(ctx, upload, apperrors.IssuesOf(err), err)
	}

	// last ownership check before anything becomes visible
	if alive, err := s.uploads.Heartbeat(ctx, id, attempt); err == nil && !alive {
		log.Warn("Upload attempt superseded before commit", zap.Int("attempt", attempt))
		return repositories.ErrAttemptSuperseded
	}

	_, err = s.coord.Execute(ctx, CommitPayload{Workspace: ws.Name, Payload: payload, Overwrite: req.Overwrite},
		WithCancelCheck(userCancelled))
	if err != nil {
		return s.fail(ctx, upload, append(issues, apperrors.IssuesOf(err)...), err)
	}

	if err := s.uploads.MarkSucceeded(ctx, id, attempt, issues); err != nil {
		return fmt.Errorf("mark upload succeeded: %w", err)
	}
	if err := s.flags.ClearCancel(ctx, id); err != nil {
		log.Warn("Failed to clear cancel flag", zap.Error(err))
	}
	s.countIssues(issues)
	metrics.Uploads.WithLabelValues(string(models.UploadStatusSucceeded)).Inc()

	log.Info("Upload succeeded",
		zap.String("workspace", ws.Name),
		zap.Int("tables", len(payload.Tables)),
		zap.Int("issues", len(issues)),
		zap.Duration("duration", time.Since(started)))
	return nil
}

func (s *UploadService) fail(ctx context.Context, upload *models.Upload, issues []models.Issue, cause error) error {
	// Shutdown or a lost heartbeat, not a user cancel: leave the upload
	// processing so stale recovery or the newer attempt deals with it.
	if ctx.Err() != nil {
		if flagged, _ := s.flags.IsCancelled(context.WithoutCancel(ctx), upload.ID); !flagged {
			return context.Cause(ctx)
		}
	}
	ctx = context.WithoutCancel(ctx)

	msg := cause.Error()
	if errors.Is(cause, apperrors.ErrCancelled) {
		msg = cancelledMessage
	}
	if err := s.uploads.MarkFailed(ctx, upload.ID, upload.AttemptCount, issues, []string{msg}); err != nil {
		return fmt.Errorf("mark upload failed: %w", err)
	}
	if err := s.flags.ClearCancel(ctx, upload.ID); err != nil {
		s.log.Warn("Failed to clear cancel flag", zap.String("upload_id", upload.ID.String()), zap.Error(err))
	}
	s.countIssues(issues)
	metrics.Uploads.WithLabelValues(string(models.UploadStatusFailed)).Inc()

	s.log.Warn("Upload failed",
		zap.String("upload_id", upload.ID.String()),
		zap.String("reason", string(apperrors.TypeOf(cause))),
		zap.Int("issues", len(issues)),
		zap.Error(cause))
	return nil
}

// keepAlive stamps the upload every s.heartbeat until stopped. When the
// upload is no longer processing under attempt it cancels ctx through
// abandon with repositories.ErrAttemptSuperseded.
func (s *UploadService) keepAlive(ctx context.Context, id uuid.UUID, attempt int, abandon context.CancelCauseFunc) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			alive, err := s.uploads.Heartbeat(ctx, id, attempt)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("Upload heartbeat failed", zap.String("upload_id", id.String()), zap.Error(err))
				}
				continue
			}
			if !alive {
				s.log.Warn("Upload attempt superseded, abandoning",
					zap.String("upload_id", id.String()), zap.Int("attempt", attempt))
				abandon(repositories.ErrAttemptSuperseded)
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (s *UploadService) countIssues(issues []models.Issue) {
	for _, is := range issues {
		metrics.IngestIssues.WithLabelValues(string(is.Kind)).Inc()
	}
}
