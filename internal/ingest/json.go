package ingest

import (
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"multinet/internal/apperrors"
	"multinet/internal/models"
)

func parseJSONDocument(data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, apperrors.Parse("invalid JSON document", nil)
	}
	return gjson.ParseBytes(data), nil
}

// jsonValue maps a gjson value onto the raw values the rest of the
// pipeline understands. Objects and arrays stay nested.
func jsonValue(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		return v.String()
	case gjson.Number:
		if i, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return i
		}
		return v.Num
	default:
		return v.Value()
	}
}

func objectRow(obj gjson.Result, line int, skip ...string) Row {
	row := newRow(line)
	obj.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		for _, s := range skip {
			if k == s {
				return true
			}
		}
		row.Set(k, jsonValue(value))
		return true
	})
	return row
}

func objectRows(arr gjson.Result, what string) ([]Row, error) {
	if !arr.IsArray() {
		return nil, apperrors.Parse(fmt.Sprintf("%s must be an array", what), nil)
	}
	var rows []Row
	var err error
	arr.ForEach(func(_, value gjson.Result) bool {
		if !value.IsObject() {
			err = apperrors.Parse(fmt.Sprintf("%s entry %d is not an object", what, len(rows)+1), nil)
			return false
		}
		rows = append(rows, objectRow(value, len(rows)+1))
		return true
	})
	return rows, err
}

func parseJSONTable(data []byte, req Request) (*parsed, []models.Issue, error) {
	doc, err := parseJSONDocument(data)
	if err != nil {
		return nil, nil, err
	}
	rows, err := objectRows(doc, "table")
	if err != nil {
		return nil, nil, err
	}
	kind := req.Kind
	if kind == "" {
		kind = models.TableKindPlain
	}
	return &parsed{Tables: []rawTable{{Name: req.Target, Kind: kind, NodeTable: req.NodeTable, Rows: rows}}}, nil, nil
}

// parseNodeLink reads {"nodes": [...], "links": [...]}; "edges" is accepted
// in place of "links".
func parseNodeLink(data []byte, req Request) (*parsed, []models.Issue, error) {
	doc, err := parseJSONDocument(data)
	if err != nil {
		return nil, nil, err
	}
	if !doc.IsObject() {
		return nil, nil, apperrors.Parse("node-link document must be an object", nil)
	}
	nodesField := doc.Get("nodes")
	if !nodesField.Exists() {
		return nil, nil, apperrors.Parse(`node-link document has no "nodes" array`, nil)
	}
	linksField := doc.Get("links")
	if !linksField.Exists() {
		linksField = doc.Get("edges")
	}
	if !linksField.Exists() {
		return nil, nil, apperrors.Parse(`node-link document has no "links" or "edges" array`, nil)
	}

	nodes, err := objectRows(nodesField, "nodes")
	if err != nil {
		return nil, nil, err
	}
	links, err := objectRows(linksField, "links")
	if err != nil {
		return nil, nil, err
	}
	return graphParse(req.Target, nodes, links), nil, nil
}

const childrenKey = "children"

// parseNestedJSON flattens a tree into nodes plus parent-to-child edges.
// Nodes without an id get a generated key in depth-first order.
func parseNestedJSON(data []byte, req Request) (*parsed, []models.Issue, error) {
	doc, err := parseJSONDocument(data)
	if err != nil {
		return nil, nil, err
	}
	if !doc.IsObject() && !doc.IsArray() {
		return nil, nil, apperrors.Parse("nested document must be an object or an array of roots", nil)
	}

	nodeTable := NodeTableName(req.Target)
	var nodes, edges []Row
	var walkErr error
	var walk func(obj gjson.Result, parent string)
	walk = func(obj gjson.Result, parent string) {
		if walkErr != nil {
			return
		}
		if !obj.IsObject() {
			walkErr = apperrors.Parse(fmt.Sprintf("tree entry %d is not an object", len(nodes)+1), nil)
			return
		}
		row := objectRow(obj, len(nodes)+1, childrenKey)
		key := nestedKey(row)
		row.Set("_key", key)
		nodes = append(nodes, row)

		if parent != "" {
			edge := newRow(len(edges) + 1)
			edge.Set("_from", nodeTable+"/"+parent)
			edge.Set("_to", nodeTable+"/"+key)
			edges = append(edges, edge)
		}

		children := obj.Get(childrenKey)
		if !children.Exists() {
			return
		}
		if !children.IsArray() {
			walkErr = apperrors.Parse(fmt.Sprintf("%q of node %s must be an array", childrenKey, key), nil)
			return
		}
		children.ForEach(func(_, child gjson.Result) bool {
			walk(child, key)
			return walkErr == nil
		})
	}

	if doc.IsArray() {
		doc.ForEach(func(_, root gjson.Result) bool {
			walk(root, "")
			return walkErr == nil
		})
	} else {
		walk(doc, "")
	}
	if walkErr != nil {
		return nil, nil, walkErr
	}
	return graphParse(req.Target, nodes, edges), nil, nil
}

func nestedKey(row Row) string {
	for _, k := range []string{"_key", "id"} {
		if v, ok := row.Values[k]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return "node-" + strconv.Itoa(row.Line)
}

func graphParse(network string, nodes, edges []Row) *parsed {
	nodeTable := NodeTableName(network)
	edgeTable := EdgeTableName(network)
	return &parsed{
		Tables: []rawTable{
			{Name: nodeTable, Kind: models.TableKindNode, Rows: nodes},
			{Name: edgeTable, Kind: models.TableKindEdge, NodeTable: nodeTable, Rows: edges},
		},
		Graph: &rawGraph{Name: network, EdgeTable: edgeTable, NodeTable: nodeTable},
	}
}
