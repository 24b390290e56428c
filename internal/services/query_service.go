package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"multinet/internal/apperrors"
	"multinet/internal/models"
	"multinet/internal/repositories"
	"multinet/pkg/logger"
)

const maxQueryRows = repositories.MaxQueryRows

type QueryHistoryStore interface {
	Create(ctx context.Context, queryHistory *models.QueryHistory) error
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID, limit int) ([]models.QueryHistory, error)
}

type QueryService struct {
	meta    MetadataStore
	graphs  GraphStore
	querier GraphQuerier
	history QueryHistoryStore
	log     *zap.Logger
}

func NewQueryService(meta MetadataStore, graphs GraphStore, querier GraphQuerier, history QueryHistoryStore) *QueryService {
	return &QueryService{
		meta:    meta,
		graphs:  graphs,
		querier: querier,
		history: history,
		log:     logger.Get().Named("query"),
	}
}

type QueryResult struct {
	Columns       []string         `json:"columns"`
	Rows          []map[string]any `json:"rows"`
	RowCount      int              `json:"row_count"`
	Truncated     bool             `json:"truncated,omitempty"`
	ExecutionTime int64            `json:"execution_time_ms"`
}

type ExecuteQueryRequest struct {
	Query  string         `json:"query" binding:"required"`
	Params map[string]any `json:"params"`
}

var (
	commentPattern = regexp.MustCompile(`//.*|/\*[\s\S]*?\*/`)
	stringPattern  = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"`)
	writeKeywords  = regexp.MustCompile(`\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|FOREACH|LOAD\s+CSV|CALL|USE)\b`)
	rowPattern     = regexp.MustCompile(`\(\s*\w*\s*:\s*ROW\b[^)]*\)`)
	scopedRow      = regexp.MustCompile(`\{[^}]*\bNAMESPACE\s*:\s*\$NAMESPACE\b`)
	internalLabels = regexp.MustCompile(`:\s*(NAMESPACE|COLLECTION|GRAPHDEF)\b`)
)

// ValidateCypherQuery accepts a single read-only statement that is scoped to
// the caller's workspace through the $namespace parameter. Every :Row pattern
// must carry the scope inline, where a WHERE clause cannot widen it. The
// graph store still drops any record from outside the workspace.
func (s *QueryService) ValidateCypherQuery(query string) error {
	normalized := commentPattern.ReplaceAllString(query, "")
	normalized = stringPattern.ReplaceAllString(normalized, "''")
	normalized = strings.ToUpper(strings.TrimSpace(normalized))

	if normalized == "" {
		return errors.New("query cannot be empty")
	}

	if m := writeKeywords.FindString(normalized); m != "" {
		return fmt.Errorf("operation '%s' is not allowed: queries are read-only", m)
	}

	parts := strings.Split(normalized, ";")
	nonEmptyParts := 0
	for _, part := range parts {
		if strings.TrimSpace(part) != "" {
			nonEmptyParts++
		}
	}
	if nonEmptyParts > 1 {
		return errors.New("multiple statements are not allowed")
	}

	if !strings.Contains(normalized, "$NAMESPACE") {
		return errors.New("query must filter on $namespace")
	}
	if m := internalLabels.FindString(normalized); m != "" {
		return fmt.Errorf("label '%s' is not queryable", strings.TrimSpace(strings.TrimPrefix(m, ":")))
	}
	for _, pattern := range rowPattern.FindAllString(normalized, -1) {
		if !scopedRow.MatchString(pattern) {
			return errors.New("every :Row pattern must include {namespace: $namespace}")
		}
	}
	return nil
}

// ExecuteQuery runs a read-only query against the workspace namespace and
// records it in the query history.
func (s *QueryService) ExecuteQuery(ctx context.Context, workspace, principal string, req *ExecuteQueryRequest) (*QueryResult, error) {
	ws, err := s.workspace(ctx, "execute_query", workspace)
	if err != nil {
		return nil, err
	}
	if err := s.ValidateCypherQuery(req.Query); err != nil {
		return nil, apperrors.Invalid(err.Error())
	}

	params := make(map[string]any, len(req.Params)+1)
	for k, v := range req.Params {
		params[k] = v
	}
	params["namespace"] = ws.Name

	start := time.Now()
	rows, qerr := s.querier.Query(ctx, ws.Name, req.Query, params)
	elapsed := time.Since(start)

	s.record(ctx, ws.ID, principal, req.Query, qerr == nil, elapsed)
	if qerr != nil {
		s.log.Warn("Query failed", zap.String("workspace", ws.Name), zap.Error(qerr))
		return nil, apperrors.New(apperrors.ErrorTypeInvalid, "query failed", qerr)
	}

	result := &QueryResult{
		Rows:          rows,
		ExecutionTime: elapsed.Milliseconds(),
	}
	if len(result.Rows) > maxQueryRows {
		result.Rows = result.Rows[:maxQueryRows]
		result.Truncated = true
	}
	result.RowCount = len(result.Rows)
	if len(result.Rows) > 0 {
		for col := range result.Rows[0] {
			result.Columns = append(result.Columns, col)
		}
		sort.Strings(result.Columns)
	}
	return result, nil
}

func (s *QueryService) record(ctx context.Context, workspaceID uuid.UUID, principal, query string, success bool, elapsed time.Duration) {
	ms := int(elapsed.Milliseconds())
	entry := &models.QueryHistory{
		WorkspaceID:     workspaceID,
		Principal:       principal,
		QueryText:       query,
		Success:         &success,
		ExecutionTimeMs: &ms,
	}
	if err := s.history.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Warn("Failed to record query history", zap.Error(err))
	}
}

// GetQueryHistory returns the most recent queries run in a workspace.
func (s *QueryService) GetQueryHistory(ctx context.Context, workspace string, limit int) ([]models.QueryHistory, error) {
	ws, err := s.workspace(ctx, "query_history", workspace)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.history.ListByWorkspace(ctx, ws.ID, limit)
}
