package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multinet/internal/models"
)

func newUpload(t *testing.T, repo *UploadRepository, workspaceID uuid.UUID) *models.Upload {
	t.Helper()
	upload := &models.Upload{
		WorkspaceID: workspaceID,
		DataType:    "csv",
		TargetName:  "people",
		BlobRef:     "file://people.csv",
	}
	require.NoError(t, repo.Create(context.Background(), upload))
	return upload
}

// drainPending claims whatever other tests left behind so each test starts
// from its own uploads.
func drainPending(t *testing.T, repo *UploadRepository) {
	t.Helper()
	for {
		ids, err := repo.Claim(context.Background(), 100)
		require.NoError(t, err)
		if len(ids) == 0 {
			return
		}
	}
}

func TestUploadClaimIsExclusive(t *testing.T) {
	requirePostgres(t)
	repo := NewUploadRepository(testGorm)
	ws := newWorkspace(t, NewMetadataStore(testPool))
	drainPending(t, repo)

	created := map[uuid.UUID]bool{}
	for i := 0; i < 6; i++ {
		created[newUpload(t, repo, ws.ID).ID] = true
	}

	var (
		mu      sync.Mutex
		claimed []uuid.UUID
		wg      sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := repo.Claim(context.Background(), 2)
			assert.NoError(t, err)
			mu.Lock()
			claimed = append(claimed, ids...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, claimed, 6)
	seen := map[uuid.UUID]bool{}
	for _, id := range claimed {
		assert.True(t, created[id])
		assert.False(t, seen[id], "upload %s claimed twice", id)
		seen[id] = true
	}

	got, err := repo.Get(context.Background(), claimed[0])
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusProcessing, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.NotNil(t, got.StartedAt)
}

func TestUploadLifecycle(t *testing.T) {
	requirePostgres(t)
	repo := NewUploadRepository(testGorm)
	ctx := context.Background()
	ws := newWorkspace(t, NewMetadataStore(testPool))
	drainPending(t, repo)

	pending := newUpload(t, repo, ws.ID)
	cancelled, err := repo.CancelPending(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	got, err := repo.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusFailed, got.Status)
	assert.JSONEq(t, `["cancelled"]`, string(got.ErrorMessages))

	work := newUpload(t, repo, ws.ID)
	ids, err := repo.Claim(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{work.ID}, ids)

	cancelled, err = repo.CancelPending(ctx, work.ID)
	require.NoError(t, err)
	assert.False(t, cancelled, "a claimed upload is not pending")

	issues := []models.Issue{{Kind: models.IssueKindReferential, Row: 3, Message: "missing node people/9"}}
	require.NoError(t, repo.MarkFailed(ctx, work.ID, 1, issues, []string{"referential check failed"}))

	got, err = repo.Get(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusFailed, got.Status)
	assert.Contains(t, string(got.Issues), "missing node people/9")
	assert.NotNil(t, got.CompletedAt)

	listed, err := repo.ListByWorkspace(ctx, ws.ID, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	missing, err := repo.Get(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUploadRecoverStale(t *testing.T) {
	requirePostgres(t)
	repo := NewUploadRepository(testGorm)
	ctx := context.Background()
	ws := newWorkspace(t, NewMetadataStore(testPool))
	drainPending(t, repo)

	upload := newUpload(t, repo, ws.ID)
	ids, err := repo.Claim(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{upload.ID}, ids)

	recovered, err := repo.RecoverStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, recovered)

	time.Sleep(10 * time.Millisecond)
	recovered, err = repo.RecoverStale(ctx, time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, recovered, int64(1))

	got, err := repo.Get(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusPending, got.Status)
	assert.Nil(t, got.StartedAt)

	ids, err = repo.Claim(ctx, 100)
	require.NoError(t, err)
	require.Contains(t, ids, upload.ID)
	got, err = repo.Get(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptCount)

	assert.ErrorIs(t, repo.MarkFailed(ctx, upload.ID, 1, nil, []string{"late"}), ErrAttemptSuperseded,
		"the recovered attempt cannot record an outcome")
	alive, err := repo.Heartbeat(ctx, upload.ID, 1)
	require.NoError(t, err)
	assert.False(t, alive)

	require.NoError(t, repo.MarkSucceeded(ctx, upload.ID, 2, nil))
	got, err = repo.Get(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusSucceeded, got.Status)
	assert.ErrorIs(t, repo.MarkFailed(ctx, upload.ID, 2, nil, []string{"twice"}), ErrAttemptSuperseded)
}

func TestUploadHeartbeatKeepsUploadClaimed(t *testing.T) {
	requirePostgres(t)
	repo := NewUploadRepository(testGorm)
	ctx := context.Background()
	ws := newWorkspace(t, NewMetadataStore(testPool))
	drainPending(t, repo)

	quiet := newUpload(t, repo, ws.ID)
	busy := newUpload(t, repo, ws.ID)
	ids, err := repo.Claim(ctx, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{quiet.ID, busy.ID}, ids)

	time.Sleep(300 * time.Millisecond)
	alive, err := repo.Heartbeat(ctx, busy.ID, 1)
	require.NoError(t, err)
	assert.True(t, alive)

	_, err = repo.RecoverStale(ctx, 200*time.Millisecond)
	require.NoError(t, err)

	got, err := repo.Get(ctx, quiet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusPending, got.Status)
	got, err = repo.Get(ctx, busy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UploadStatusProcessing, got.Status, "a heartbeating upload is not stale")
	require.NoError(t, repo.MarkSucceeded(ctx, busy.ID, 1, nil))
}
