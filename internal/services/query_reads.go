package services

import (
	"context"

	"github.com/samber/lo"

	"multinet/internal/apperrors"
	"multinet/internal/models"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type Page struct {
	Offset int `form:"offset"`
	Limit  int `form:"limit"`
}

func (p Page) normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	return p
}

type RowsPage struct {
	Rows   []map[string]any `json:"rows"`
	Total  int64            `json:"total"`
	Offset int              `json:"offset"`
	Limit  int              `json:"limit"`
}

type WorkspaceDetail struct {
	models.Workspace
	Tables []models.Table `json:"tables"`
	Graphs []models.Graph `json:"graphs"`
}

type GraphDetail struct {
	models.Graph
	NodeCount int64 `json:"node_count"`
	EdgeCount int64 `json:"edge_count"`
}

func (s *QueryService) workspace(ctx context.Context, op, name string) (*models.Workspace, error) {
	ws, err := s.meta.GetWorkspace(ctx, name)
	if err != nil {
		return nil, storeError(op, "look up workspace", err)
	}
	if ws == nil {
		return nil, apperrors.NotFound("workspace " + name)
	}
	return ws, nil
}

func (s *QueryService) ListWorkspaces(ctx context.Context) ([]models.Workspace, error) {
	workspaces, err := s.meta.ListWorkspaces(ctx)
	if err != nil {
		return nil, storeError("list_workspaces", "list workspaces", err)
	}
	return workspaces, nil
}

func (s *QueryService) GetWorkspace(ctx context.Context, name string) (*WorkspaceDetail, error) {
	ws, err := s.workspace(ctx, "get_workspace", name)
	if err != nil {
		return nil, err
	}
	tables, err := s.meta.ListTables(ctx, ws.ID)
	if err != nil {
		return nil, storeError("get_workspace", "list tables", err)
	}
	graphs, err := s.meta.ListGraphs(ctx, ws.ID)
	if err != nil {
		return nil, storeError("get_workspace", "list graphs", err)
	}
	return &WorkspaceDetail{Workspace: *ws, Tables: tables, Graphs: graphs}, nil
}

func (s *QueryService) ListTables(ctx context.Context, workspace string, kind models.TableKind) ([]models.Table, error) {
	ws, err := s.workspace(ctx, "list_tables", workspace)
	if err != nil {
		return nil, err
	}
	tables, err := s.meta.ListTables(ctx, ws.ID)
	if err != nil {
		return nil, storeError("list_tables", "list tables", err)
	}
	if kind != "" {
		tables = lo.Filter(tables, func(t models.Table, _ int) bool { return t.Kind == kind })
	}
	return tables, nil
}

func (s *QueryService) GetTable(ctx context.Context, workspace, name string) (*models.Table, error) {
	ws, err := s.workspace(ctx, "get_table", workspace)
	if err != nil {
		return nil, err
	}
	return s.table(ctx, ws, name)
}

func (s *QueryService) table(ctx context.Context, ws *models.Workspace, name string) (*models.Table, error) {
	table, err := s.meta.GetTable(ctx, ws.ID, name)
	if err != nil {
		return nil, storeError("get_table", "look up table", err)
	}
	if table == nil {
		return nil, apperrors.NotFound("table " + name)
	}
	return table, nil
}

// TableRows returns one page of rows with the reserved keys inlined.
func (s *QueryService) TableRows(ctx context.Context, workspace, name string, page Page) (*RowsPage, error) {
	ws, err := s.workspace(ctx, "table_rows", workspace)
	if err != nil {
		return nil, err
	}
	if _, err := s.table(ctx, ws, name); err != nil {
		return nil, err
	}
	return s.rows(ctx, ws.Name, []string{name}, page.normalize())
}

func (s *QueryService) ListGraphs(ctx context.Context, workspace string) ([]models.Graph, error) {
	ws, err := s.workspace(ctx, "list_graphs", workspace)
	if err != nil {
		return nil, err
	}
	graphs, err := s.meta.ListGraphs(ctx, ws.ID)
	if err != nil {
		return nil, storeError("list_graphs", "list graphs", err)
	}
	return graphs, nil
}

func (s *QueryService) GetGraph(ctx context.Context, workspace, name string) (*GraphDetail, error) {
	ws, graph, err := s.graph(ctx, "get_graph", workspace, name)
	if err != nil {
		return nil, err
	}
	detail := &GraphDetail{Graph: *graph}
	for _, t := range graph.NodeTables {
		n, err := s.graphs.CountDocuments(ctx, ws.Name, t)
		if err != nil {
			return nil, storeError("get_graph", "count nodes", err)
		}
		detail.NodeCount += n
	}
	detail.EdgeCount, err = s.graphs.CountDocuments(ctx, ws.Name, graph.EdgeTable)
	if err != nil {
		return nil, storeError("get_graph", "count edges", err)
	}
	return detail, nil
}

// GraphNodes pages through the node tables of a graph in their declared
// order, as if they were one table.
func (s *QueryService) GraphNodes(ctx context.Context, workspace, name string, page Page) (*RowsPage, error) {
	ws, graph, err := s.graph(ctx, "graph_nodes", workspace, name)
	if err != nil {
		return nil, err
	}
	return s.rows(ctx, ws.Name, graph.NodeTables, page.normalize())
}

func (s *QueryService) GraphEdges(ctx context.Context, workspace, name string, page Page) (*RowsPage, error) {
	ws, graph, err := s.graph(ctx, "graph_edges", workspace, name)
	if err != nil {
		return nil, err
	}
	return s.rows(ctx, ws.Name, []string{graph.EdgeTable}, page.normalize())
}

func (s *QueryService) graph(ctx context.Context, op, workspace, name string) (*models.Workspace, *models.Graph, error) {
	ws, err := s.workspace(ctx, op, workspace)
	if err != nil {
		return nil, nil, err
	}
	graph, err := s.meta.GetGraph(ctx, ws.ID, name)
	if err != nil {
		return nil, nil, storeError(op, "look up graph", err)
	}
	if graph == nil {
		return nil, nil, apperrors.NotFound("graph " + name)
	}
	return ws, graph, nil
}

// rows reads one page spanning the given collections back to back.
func (s *QueryService) rows(ctx context.Context, namespace string, collections []string, page Page) (*RowsPage, error) {
	out := &RowsPage{Rows: []map[string]any{}, Offset: page.Offset, Limit: page.Limit}
	skip := int64(page.Offset)
	for _, coll := range collections {
		count, err := s.graphs.CountDocuments(ctx, namespace, coll)
		if err != nil {
			return nil, storeError("read_rows", "count "+coll, err)
		}
		out.Total += count

		want := page.Limit - len(out.Rows)
		if want <= 0 || skip >= count {
			skip = max(skip-count, 0)
			continue
		}
		docs, err := s.graphs.ReadDocuments(ctx, namespace, coll, int(skip), want)
		if err != nil {
			return nil, storeError("read_rows", "read "+coll, err)
		}
		skip = 0
		for _, d := range docs {
			out.Rows = append(out.Rows, d.Flatten())
		}
	}
	return out, nil
}
