package services

import (
	"context"
	"io"

	"go.uber.org/zap"

	"multinet/internal/apperrors"
	"multinet/internal/ingest"
	"multinet/internal/models"
	"multinet/pkg/logger"
)

// WorkspaceService is the synchronous write surface. Every mutation goes
// through the Coordinator.
type WorkspaceService struct {
	meta     MetadataStore
	graphs   GraphStore
	coord    *Coordinator
	pipeline *ingest.Pipeline
	log      *zap.Logger
}

func NewWorkspaceService(meta MetadataStore, graphs GraphStore, coord *Coordinator, pipeline *ingest.Pipeline) *WorkspaceService {
	return &WorkspaceService{
		meta:     meta,
		graphs:   graphs,
		coord:    coord,
		pipeline: pipeline,
		log:      logger.Get().Named("workspaces"),
	}
}

type CreateWorkspaceRequest struct {
	Name string `json:"name" binding:"required"`
}

type RenameWorkspaceRequest struct {
	Name string `json:"name" binding:"required"`
}

type CreateGraphRequest struct {
	Name       string   `json:"name" binding:"required"`
	EdgeTable  string   `json:"edge_table" binding:"required"`
	NodeTables []string `json:"node_tables"`
}

// TableWriteResult carries the non-fatal issues found while ingesting rows.
type TableWriteResult struct {
	*Result
	Issues []models.Issue `json:"issues,omitempty"`
}

func (s *WorkspaceService) CreateWorkspace(ctx context.Context, req CreateWorkspaceRequest) (*models.Workspace, error) {
	res, err := s.coord.Execute(ctx, CreateWorkspace{Name: req.Name})
	if err != nil {
		return nil, err
	}
	return res.Workspace, nil
}

func (s *WorkspaceService) RenameWorkspace(ctx context.Context, from string, req RenameWorkspaceRequest) (*models.Workspace, error) {
	res, err := s.coord.Execute(ctx, RenameWorkspace{From: from, To: req.Name})
	if err != nil {
		return nil, err
	}
	return res.Workspace, nil
}

func (s *WorkspaceService) DeleteWorkspace(ctx context.Context, name string) error {
	_, err := s.coord.Execute(ctx, DeleteWorkspace{Name: name})
	return err
}

// WriteTable ingests a request body (JSON rows by default, or CSV/TSV) and
// creates or replaces the target table with it. Graph formats are upload-only.
func (s *WorkspaceService) WriteTable(ctx context.Context, workspace string, req ingest.Request, body io.Reader) (*TableWriteResult, error) {
	if req.Format == "" {
		req.Format = ingest.FormatJSONTable
	}
	format, err := ingest.ParseFormat(string(req.Format))
	if err != nil {
		return nil, apperrors.Invalid(err.Error())
	}
	if format.Graph() {
		return nil, apperrors.Invalid("format " + string(format) + " creates a graph; submit it as an upload")
	}
	if _, err := s.coord.workspace(ctx, "create_or_replace_table", workspace); err != nil {
		return nil, err
	}

	payload, issues, err := s.pipeline.Ingest(ctx, body, req, keyResolver{graphs: s.graphs, namespace: workspace}, nil)
	if err != nil {
		return nil, err
	}
	res, err := s.coord.Execute(ctx, CreateOrReplaceTable{
		Workspace: workspace,
		Table:     payload.Tables[0],
		Overwrite: req.Overwrite,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Table written",
		zap.String("workspace", workspace),
		zap.String("table", req.Target),
		zap.Int("rows", len(payload.Tables[0].Documents)),
		zap.Int("issues", len(issues)))
	return &TableWriteResult{Result: res, Issues: issues}, nil
}

func (s *WorkspaceService) DeleteTable(ctx context.Context, workspace, name string) error {
	_, err := s.coord.Execute(ctx, DeleteTable{Workspace: workspace, Name: name})
	return err
}

type AppendRowsRequest struct {
	Rows []map[string]any `json:"rows" binding:"required"`
}

type DeleteRowsRequest struct {
	Keys []string `json:"keys" binding:"required"`
}

// AppendRows upserts rows into an existing table. Rows are checked against
// the stored column types and rejected as a whole if any does not conform.
func (s *WorkspaceService) AppendRows(ctx context.Context, workspace, table string, req AppendRowsRequest) (*Result, error) {
	res, err := s.coord.Execute(ctx, AppendRows{Workspace: workspace, Table: table, Rows: req.Rows})
	if err != nil {
		return nil, err
	}
	s.log.Info("Rows appended",
		zap.String("workspace", workspace),
		zap.String("table", table),
		zap.Int("rows", len(req.Rows)))
	return res, nil
}

func (s *WorkspaceService) DeleteRows(ctx context.Context, workspace, table string, req DeleteRowsRequest) (*Result, error) {
	return s.coord.Execute(ctx, DeleteRows{Workspace: workspace, Table: table, Keys: req.Keys})
}

func (s *WorkspaceService) CreateGraph(ctx context.Context, workspace string, req CreateGraphRequest) (*models.Graph, error) {
	res, err := s.coord.Execute(ctx, CreateGraph{
		Workspace:  workspace,
		Name:       req.Name,
		EdgeTable:  req.EdgeTable,
		NodeTables: req.NodeTables,
	})
	if err != nil {
		return nil, err
	}
	return res.Graph, nil
}

func (s *WorkspaceService) DeleteGraph(ctx context.Context, workspace, name string) error {
	_, err := s.coord.Execute(ctx, DeleteGraph{Workspace: workspace, Name: name})
	return err
}
