package services

import (
	"context"

	"github.com/google/uuid"

	"multinet/internal/models"
)

// MetadataStore is the relational side: workspace, table and graph rows.
// Getters return nil, nil when the row does not exist.
type MetadataStore interface {
	CreateWorkspace(ctx context.Context, workspace *models.Workspace) error
	GetWorkspace(ctx context.Context, name string) (*models.Workspace, error)
	GetWorkspaceByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]models.Workspace, error)
	RenameWorkspace(ctx context.Context, id uuid.UUID, name string) error
	DeleteWorkspace(ctx context.Context, id uuid.UUID) error

	SaveTable(ctx context.Context, table *models.Table) error
	RestoreTable(ctx context.Context, table *models.Table) error
	GetTable(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Table, error)
	ListTables(ctx context.Context, workspaceID uuid.UUID) ([]models.Table, error)
	DeleteTable(ctx context.Context, id uuid.UUID) error
	GraphsReferencing(ctx context.Context, tableID uuid.UUID) ([]string, error)

	CreateGraph(ctx context.Context, graph *models.Graph) error
	GetGraph(ctx context.Context, workspaceID uuid.UUID, name string) (*models.Graph, error)
	ListGraphs(ctx context.Context, workspaceID uuid.UUID) ([]models.Graph, error)
	DeleteGraph(ctx context.Context, id uuid.UUID) error
}

// GraphStore is the graph-capable side: namespaces, collections of rows and
// graph definitions.
type GraphStore interface {
	CreateNamespace(ctx context.Context, namespace string) error
	NamespaceExists(ctx context.Context, namespace string) (bool, error)
	RenameNamespace(ctx context.Context, from, to string) error
	DropNamespace(ctx context.Context, namespace string) error
	ListNamespaces(ctx context.Context) ([]models.CollectionInfo, error)

	WriteCollection(ctx context.Context, namespace, collection string, kind models.TableKind, docs []models.Document) error
	RenameCollection(ctx context.Context, namespace, from, to string) error
	DropCollection(ctx context.Context, namespace, collection string) error
	ListCollections(ctx context.Context, namespace string) ([]models.CollectionInfo, error)
	Promote(ctx context.Context, namespace string, swaps []models.CollectionSwap) error

	CreateGraph(ctx context.Context, namespace string, def models.GraphDefinition) error
	DropGraph(ctx context.Context, namespace, name string) error
	GetGraph(ctx context.Context, namespace, name string) (*models.GraphDefinition, error)

	ExistingKeys(ctx context.Context, namespace, collection string, keys []string) (map[string]struct{}, error)
	ReadDocuments(ctx context.Context, namespace, collection string, offset, limit int) ([]models.Document, error)
	CountDocuments(ctx context.Context, namespace, collection string) (int64, error)
}

// GraphQuerier runs read-only queries against a namespace.
type GraphQuerier interface {
	Query(ctx context.Context, namespace, cypher string, params map[string]any) ([]map[string]any, error)
}
