package ingest

import "multinet/internal/models"

// Row keeps keys in document order so column discovery is first-seen.
type Row struct {
	Line   int
	Keys   []string
	Values map[string]any
}

func newRow(line int) Row {
	return Row{Line: line, Values: make(map[string]any)}
}

func (r *Row) Set(key string, value any) {
	if _, ok := r.Values[key]; !ok {
		r.Keys = append(r.Keys, key)
	}
	r.Values[key] = value
}

type rawTable struct {
	Name string
	Kind models.TableKind
	// NodeTable qualifies bare endpoints of an edge table.
	NodeTable string
	Rows      []Row
}

type rawGraph struct {
	Name      string
	EdgeTable string
	NodeTable string
}

type parsed struct {
	Tables []rawTable
	Graph  *rawGraph
}

// TablePayload is a validated table ready for commit.
type TablePayload struct {
	Name      string
	Kind      models.TableKind
	Columns   []models.Column
	Documents []models.Document
	// lines holds the source line of each document.
	lines []int
}

// Line is the source line document i was read from. Payloads built outside
// a parse fall back to the 1-based position.
func (t *TablePayload) Line(i int) int {
	if i < len(t.lines) {
		return t.lines[i]
	}
	return i + 1
}

type GraphPayload struct {
	Name       string
	EdgeTable  string
	NodeTables []string
}

// Payload is the output of a successful ingest. It is committed as one unit.
type Payload struct {
	Tables []TablePayload
	Graph  *GraphPayload
}

func (p *Payload) Table(name string) *TablePayload {
	for i := range p.Tables {
		if p.Tables[i].Name == name {
			return &p.Tables[i]
		}
	}
	return nil
}
