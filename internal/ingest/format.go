package ingest

import (
	"fmt"
	"sort"
	"strings"

	"multinet/internal/models"
)

type Format string

const (
	FormatCSV        Format = "csv"
	FormatTSV        Format = "tsv"
	FormatJSONTable  Format = "json_table"
	FormatNodeLink   Format = "node_link"
	FormatNestedJSON Format = "nested_json"
)

// ParseFormat accepts the canonical names plus the aliases older clients send.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "tsv":
		return FormatTSV, nil
	case "json_table", "json":
		return FormatJSONTable, nil
	case "node_link", "d3_json", "json_network":
		return FormatNodeLink, nil
	case "nested_json", "nested", "tree_json":
		return FormatNestedJSON, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// Graph reports whether the format yields a node table, an edge table and a
// graph rather than a single table.
func (f Format) Graph() bool {
	return f == FormatNodeLink || f == FormatNestedJSON
}

func NodeTableName(network string) string {
	return network + "_nodes"
}

func EdgeTableName(network string) string {
	return network + "_edges"
}

// Request describes one ingest: what bytes are and where they should land.
type Request struct {
	Format Format `json:"format"`
	// Target is the table name, or the network name for graph formats.
	Target string           `json:"target"`
	Kind   models.TableKind `json:"kind,omitempty"`
	// NodeTable qualifies bare edge endpoints ("A" becomes "<NodeTable>/A").
	NodeTable   string                       `json:"node_table,omitempty"`
	ColumnTypes map[string]models.ColumnType `json:"column_types,omitempty"`
	Delimiter   string                       `json:"delimiter,omitempty"`
	Overwrite   bool                         `json:"overwrite,omitempty"`
}

func (r Request) Validate() error {
	if r.Target == "" {
		return fmt.Errorf("target name is required")
	}
	if _, err := ParseFormat(string(r.Format)); err != nil {
		return err
	}
	if r.Kind != "" && !r.Kind.Valid() {
		return fmt.Errorf("invalid table kind %q", r.Kind)
	}
	roleColumns := make(map[models.ColumnType][]string)
	for col, t := range r.ColumnTypes {
		if !t.Valid() {
			return fmt.Errorf("invalid type %q for column %q", t, col)
		}
		switch t {
		case models.ColumnTypePrimary, models.ColumnTypeSource, models.ColumnTypeTarget:
			roleColumns[t] = append(roleColumns[t], col)
		}
	}
	for t, cols := range roleColumns {
		if len(cols) > 1 {
			sort.Strings(cols)
			return fmt.Errorf("only one column may be declared %s, got %s", t, strings.Join(cols, ", "))
		}
	}
	if len([]rune(r.Delimiter)) > 1 {
		return fmt.Errorf("delimiter must be a single character")
	}
	return nil
}
