package models

import (
	"time"

	"github.com/google/uuid"
)

type TableKind string

const (
	TableKindPlain TableKind = "plain"
	TableKindNode  TableKind = "node"
	TableKindEdge  TableKind = "edge"
)

func (k TableKind) Valid() bool {
	switch k {
	case TableKindPlain, TableKindNode, TableKindEdge:
		return true
	}
	return false
}

type ColumnType string

const (
	ColumnTypeLabel    ColumnType = "label"
	ColumnTypeString   ColumnType = "string"
	ColumnTypeNumber   ColumnType = "number"
	ColumnTypeBoolean  ColumnType = "boolean"
	ColumnTypeDate     ColumnType = "date"
	ColumnTypeCategory ColumnType = "category"
	ColumnTypeIgnored  ColumnType = "ignored"

	// Role declarations accepted on upload. They are stored as string columns.
	ColumnTypePrimary ColumnType = "primary"
	ColumnTypeSource  ColumnType = "source"
	ColumnTypeTarget  ColumnType = "target"
)

func (t ColumnType) Valid() bool {
	switch t {
	case ColumnTypeLabel, ColumnTypeString, ColumnTypeNumber, ColumnTypeBoolean,
		ColumnTypeDate, ColumnTypeCategory, ColumnTypeIgnored,
		ColumnTypePrimary, ColumnTypeSource, ColumnTypeTarget:
		return true
	}
	return false
}

type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Table is the metadata row for a collection of rows in the graph store.
type Table struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Name        string    `json:"name"`
	Kind        TableKind `json:"kind"`
	Columns     []Column  `json:"columns"`
	RowCount    int64     `json:"row_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (t *Table) Prepare() {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

func (t *Table) IsEdge() bool {
	return t.Kind == TableKindEdge
}
