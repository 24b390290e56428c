package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"multinet/internal/models"
)

type WorkspaceRepository struct {
	pool *pgxpool.Pool
}

func NewWorkspaceRepository(pool *pgxpool.Pool) *WorkspaceRepository {
	return &WorkspaceRepository{pool: pool}
}

func (r *WorkspaceRepository) CreateWorkspace(ctx context.Context, workspace *models.Workspace) error {
	workspace.Prepare()

	query := `
		INSERT INTO workspaces (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		workspace.ID,
		workspace.Name,
		workspace.CreatedAt,
		workspace.UpdatedAt,
	)
	return translatePgError(err)
}

func (r *WorkspaceRepository) GetWorkspace(ctx context.Context, name string) (*models.Workspace, error) {
	return r.getWorkspace(ctx, "name", name)
}

func (r *WorkspaceRepository) GetWorkspaceByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	return r.getWorkspace(ctx, "id", id)
}

func (r *WorkspaceRepository) getWorkspace(ctx context.Context, column string, value any) (*models.Workspace, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM workspaces WHERE ` + column + ` = $1
	`

	var workspace models.Workspace
	err := r.pool.QueryRow(ctx, query, value).Scan(
		&workspace.ID,
		&workspace.Name,
		&workspace.CreatedAt,
		&workspace.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &workspace, nil
}

func (r *WorkspaceRepository) ListWorkspaces(ctx context.Context) ([]models.Workspace, error) {
	query := `
		SELECT id, name, created_at, updated_at
		FROM workspaces
		ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workspaces []models.Workspace
	for rows.Next() {
		var workspace models.Workspace
		if err := rows.Scan(
			&workspace.ID,
			&workspace.Name,
			&workspace.CreatedAt,
			&workspace.UpdatedAt,
		); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, workspace)
	}
	return workspaces, rows.Err()
}

func (r *WorkspaceRepository) RenameWorkspace(ctx context.Context, id uuid.UUID, name string) error {
	query := `UPDATE workspaces SET name = $2, updated_at = $3 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id, name, time.Now())
	if err != nil {
		return translatePgError(err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWorkspace removes the workspace and, by cascade, its tables, graphs,
// uploads and query history.
func (r *WorkspaceRepository) DeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM workspaces WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return translatePgError(err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
