package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"multinet/internal/models"
)

type QueryHistoryRepository struct {
	pool *pgxpool.Pool
}

func NewQueryHistoryRepository(pool *pgxpool.Pool) *QueryHistoryRepository {
	return &QueryHistoryRepository{pool: pool}
}

func (r *QueryHistoryRepository) Create(ctx context.Context, queryHistory *models.QueryHistory) error {
	queryHistory.Prepare()

	query := `
		INSERT INTO query_history (id, workspace_id, principal, query_text, executed_at, success, execution_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		queryHistory.ID,
		queryHistory.WorkspaceID,
		queryHistory.Principal,
		queryHistory.QueryText,
		queryHistory.ExecutedAt,
		queryHistory.Success,
		queryHistory.ExecutionTimeMs,
	)
	return err
}

func (r *QueryHistoryRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.QueryHistory, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, workspace_id, principal, query_text, executed_at, success, execution_time_ms
		FROM query_history WHERE workspace_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queries []models.QueryHistory
	for rows.Next() {
		var qh models.QueryHistory
		if err := rows.Scan(
			&qh.ID,
			&qh.WorkspaceID,
			&qh.Principal,
			&qh.QueryText,
			&qh.ExecutedAt,
			&qh.Success,
			&qh.ExecutionTimeMs,
		); err != nil {
			return nil, err
		}
		queries = append(queries, qh)
	}
	return queries, rows.Err()
}
