package services

import (
	"multinet/internal/ingest"
	"multinet/internal/models"
)

// Operation is one mutation accepted by the Coordinator.
type Operation interface {
	Op() string
	Locks() []LockRequest
}

type CreateWorkspace struct {
	Name string
}

type RenameWorkspace struct {
	From string
	To   string
}

type DeleteWorkspace struct {
	Name string
}

// CreateOrReplaceTable writes a full table. Overwrite must be set to replace
// an existing table of the same name.
type CreateOrReplaceTable struct {
	Workspace string
	Table     ingest.TablePayload
	Overwrite bool
}

type DeleteTable struct {
	Workspace string
	Name      string
}

// CreateGraph registers a graph over existing tables. When NodeTables is
// empty they are derived from the edge endpoints.
type CreateGraph struct {
	Workspace  string
	Name       string
	EdgeTable  string
	NodeTables []string

	// derived is set when NodeTables were worked out before locking and must
	// be confirmed once the locks are held.
	derived bool
}

type DeleteGraph struct {
	Workspace string
	Name      string
}

// CommitPayload commits the output of an ingest as one unit.
type CommitPayload struct {
	Workspace string
	Payload   *ingest.Payload
	Overwrite bool
}

// AppendRows adds rows to an existing table. A row whose key is already
// present replaces the stored one.
type AppendRows struct {
	Workspace string
	Table     string
	Rows      []map[string]any
}

// DeleteRows removes rows of an existing table by key.
type DeleteRows struct {
	Workspace string
	Table     string
	Keys      []string
}

func (o CreateWorkspace) Op() string      { return "create_workspace" }
func (o RenameWorkspace) Op() string      { return "rename_workspace" }
func (o DeleteWorkspace) Op() string      { return "delete_workspace" }
func (o CreateOrReplaceTable) Op() string { return "create_or_replace_table" }
func (o DeleteTable) Op() string          { return "delete_table" }
func (o CreateGraph) Op() string          { return "create_graph" }
func (o DeleteGraph) Op() string          { return "delete_graph" }
func (o CommitPayload) Op() string        { return "commit_payload" }
func (o AppendRows) Op() string           { return "append_rows" }
func (o DeleteRows) Op() string           { return "delete_rows" }

func (o CreateWorkspace) Locks() []LockRequest { return []LockRequest{workspaceLock(o.Name)} }

func (o RenameWorkspace) Locks() []LockRequest {
	return []LockRequest{workspaceLock(o.From), workspaceLock(o.To)}
}

func (o DeleteWorkspace) Locks() []LockRequest { return []LockRequest{workspaceLock(o.Name)} }

func (o CreateOrReplaceTable) Locks() []LockRequest {
	return entityLocks(o.Workspace, o.Table.Name)
}

func (o DeleteTable) Locks() []LockRequest { return entityLocks(o.Workspace, o.Name) }

// Graph operations lock the tables they read so a concurrent replace cannot
// invalidate the referential check.
func (o CreateGraph) Locks() []LockRequest {
	return entityLocks(o.Workspace, append([]string{o.Name, o.EdgeTable}, o.NodeTables...)...)
}

func (o DeleteGraph) Locks() []LockRequest { return entityLocks(o.Workspace, o.Name) }

func (o CommitPayload) Locks() []LockRequest {
	var entities []string
	if o.Payload != nil {
		for _, t := range o.Payload.Tables {
			entities = append(entities, t.Name)
		}
		if g := o.Payload.Graph; g != nil {
			entities = append(entities, g.Name)
			entities = append(entities, g.NodeTables...)
		}
	}
	return entityLocks(o.Workspace, entities...)
}

func (o AppendRows) Locks() []LockRequest { return entityLocks(o.Workspace, o.Table) }
func (o DeleteRows) Locks() []LockRequest { return entityLocks(o.Workspace, o.Table) }

// Result reports what an operation left behind.
type Result struct {
	Operation string            `json:"operation"`
	Steps     []string          `json:"steps"`
	Workspace *models.Workspace `json:"workspace,omitempty"`
	Tables    []models.Table    `json:"tables,omitempty"`
	Graph     *models.Graph     `json:"graph,omitempty"`
}
