package models

import (
	"time"

	"github.com/google/uuid"
)

// Graph names one edge table and the node tables its endpoints point into.
type Graph struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Name        string    `json:"name"`
	EdgeTable   string    `json:"edge_table"`
	NodeTables  []string  `json:"node_tables"`
	CreatedAt   time.Time `json:"created_at"`
}

func (g *Graph) Prepare() {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
}

// GraphDefinition is the graph-store side of a Graph: collection names only.
type GraphDefinition struct {
	Name            string   `json:"name"`
	EdgeCollection  string   `json:"edge_collection"`
	NodeCollections []string `json:"node_collections"`
}

// CollectionSwap replaces the live collection with a staged one.
type CollectionSwap struct {
	Staging string
	Live    string
}

type CollectionInfo struct {
	Name      string    `json:"name"`
	Kind      TableKind `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}
