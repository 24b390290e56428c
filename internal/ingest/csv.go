package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"multinet/internal/apperrors"
	"multinet/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func parseCSV(data []byte, req Request) (*parsed, []models.Issue, error) {
	delim := ','
	if req.Format == FormatTSV {
		delim = '\t'
	}
	if req.Delimiter != "" {
		delim, _ = utf8.DecodeRuneInString(req.Delimiter)
	}

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, apperrors.Parse("file is empty", nil)
	}
	if err != nil {
		return nil, nil, apperrors.Parse("malformed header", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			return nil, nil, apperrors.Parse(fmt.Sprintf("header column %d is empty", i+1), nil)
		}
		if _, dup := seen[name]; dup {
			return nil, nil, apperrors.Parse(fmt.Sprintf("duplicate header column %q", name), nil)
		}
		seen[name] = struct{}{}
		columns[i] = name
	}

	kind := req.Kind
	if kind == "" {
		kind = models.TableKindPlain
	}
	table := rawTable{Name: req.Target, Kind: kind, NodeTable: req.NodeTable}
	var issues []models.Issue

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, nil, apperrors.Parse(fmt.Sprintf("malformed record on line %d", perr.Line), err)
			}
			return nil, nil, apperrors.Parse("malformed record", err)
		}
		line, _ := r.FieldPos(0)
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" && len(columns) > 1 {
			continue
		}
		if len(record) > len(columns) {
			issues = append(issues, models.Issue{
				Kind:    models.IssueKindParse,
				Table:   table.Name,
				Row:     len(table.Rows) + 1,
				Message: fmt.Sprintf("line %d has %d fields, header has %d; extra fields ignored", line, len(record), len(columns)),
			})
		}
		row := newRow(len(table.Rows) + 1)
		for i, name := range columns {
			if i < len(record) {
				row.Set(name, record[i])
			} else {
				row.Set(name, "")
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return &parsed{Tables: []rawTable{table}}, issues, nil
}
