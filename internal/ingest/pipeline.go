// Package ingest turns uploaded bytes into validated table payloads and a
// list of issues. It never writes to either store.
package ingest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"multinet/internal/apperrors"
	"multinet/internal/inference"
	"multinet/internal/models"
	"multinet/pkg/logger"
)

const maxIssuesPerColumn = 100

// KeyResolver looks up keys of tables that are already committed, so edges
// may point at node tables outside the payload.
type KeyResolver interface {
	ExistingKeys(ctx context.Context, table string, keys []string) (map[string]struct{}, error)
}

type Options struct {
	SampleSize int
	Seed       int64
	Inference  inference.Options
	// ReferentialTolerance is the number of unresolved endpoints accepted
	// before the ingest is fatal. Zero is strict.
	ReferentialTolerance int
}

func DefaultOptions() Options {
	return Options{
		SampleSize: 1000,
		Inference:  inference.DefaultOptions(),
	}
}

// CancelCheck reports whether the running ingest should stop.
type CancelCheck func(ctx context.Context) (bool, error)

type Pipeline struct {
	opts Options
	log  *zap.Logger
}

func NewPipeline(opts Options) *Pipeline {
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultOptions().SampleSize
	}
	return &Pipeline{opts: opts, log: logger.Get().Named("ingest")}
}

type parseFunc func(data []byte, req Request) (*parsed, []models.Issue, error)

var parsers = map[Format]parseFunc{
	FormatCSV:        parseCSV,
	FormatTSV:        parseCSV,
	FormatJSONTable:  parseJSONTable,
	FormatNodeLink:   parseNodeLink,
	FormatNestedJSON: parseNestedJSON,
}

// Ingest parses, types and validates r. On a fatal outcome the payload is
// nil and the error carries every issue; otherwise the returned issues are
// the non-fatal ones.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader, req Request, resolver KeyResolver, cancelled CancelCheck) (*Payload, []models.Issue, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, apperrors.Invalid(err.Error())
	}
	format, _ := ParseFormat(string(req.Format))
	req.Format = format

	checkpoint := func(stage string) error {
		if err := ctx.Err(); err != nil {
			return apperrors.Cancelled("ingest " + stage)
		}
		if cancelled == nil {
			return nil
		}
		stop, err := cancelled(ctx)
		if err != nil {
			p.log.Warn("Cancellation check failed, continuing",
				zap.String("target", req.Target),
				zap.String("stage", stage),
				zap.Error(err))
			return nil
		}
		if stop {
			return apperrors.Cancelled("ingest " + stage)
		}
		return nil
	}

	if err := checkpoint("read"); err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("reading upload: %w", err)
	}

	if err := checkpoint("parse"); err != nil {
		return nil, nil, err
	}
	raw, issues, err := parsers[format](data, req)
	if err != nil {
		return nil, issues, err
	}

	payload := &Payload{}
	for _, table := range raw.Tables {
		if err := checkpoint("validate"); err != nil {
			return nil, nil, err
		}
		tp, tableIssues := p.buildTable(table, req.ColumnTypes)
		issues = append(issues, tableIssues...)
		payload.Tables = append(payload.Tables, tp)
	}
	if raw.Graph != nil {
		payload.Graph = &GraphPayload{
			Name:       raw.Graph.Name,
			EdgeTable:  raw.Graph.EdgeTable,
			NodeTables: []string{raw.Graph.NodeTable},
		}
	}

	if err := checkpoint("referential"); err != nil {
		return nil, nil, err
	}
	refIssues, err := p.checkReferences(ctx, payload, resolver)
	if err != nil {
		return nil, nil, err
	}
	issues = append(issues, refIssues...)

	if err := checkpoint("classify"); err != nil {
		return nil, nil, err
	}
	if fatal := models.CountFatal(issues); fatal > 0 {
		p.log.Info("ingest rejected",
			zap.String("target", req.Target),
			zap.Int("fatal_issues", fatal),
			zap.Int("issues", len(issues)))
		onlyReferential := lo.EveryBy(lo.Filter(issues, func(is models.Issue, _ int) bool { return is.Fatal }),
			func(is models.Issue) bool { return is.Kind == models.IssueKindReferential })
		if onlyReferential {
			return nil, issues, apperrors.Referential(fmt.Sprintf("%d unresolved edge endpoints", fatal), issues)
		}
		return nil, issues, apperrors.Validation(fmt.Sprintf("%d fatal issues", fatal), issues)
	}

	p.log.Debug("ingest validated",
		zap.String("target", req.Target),
		zap.Int("tables", len(payload.Tables)),
		zap.Int("issues", len(issues)))
	return payload, issues, nil
}

type roles struct {
	key, from, to string
}

func (r roles) has(col string) bool {
	return col != "" && (col == r.key || col == r.from || col == r.to)
}

func firstPresent(columns []string, candidates ...string) string {
	for _, c := range candidates {
		if lo.Contains(columns, c) {
			return c
		}
	}
	return ""
}

// overrideColumn returns the column declared as t. Request.Validate allows
// at most one per role; the sort keeps the choice stable regardless.
func overrideColumn(overrides map[string]models.ColumnType, t models.ColumnType) string {
	cols := lo.Keys(overrides)
	sort.Strings(cols)
	for _, col := range cols {
		if overrides[col] == t {
			return col
		}
	}
	return ""
}

func resolveRoles(kind models.TableKind, columns []string, overrides map[string]models.ColumnType) roles {
	var r roles
	switch kind {
	case models.TableKindNode:
		r.key = overrideColumn(overrides, models.ColumnTypePrimary)
		if r.key == "" {
			r.key = firstPresent(columns, "_key", "id")
		}
	case models.TableKindEdge:
		r.key = firstPresent(columns, "_key")
		r.from = overrideColumn(overrides, models.ColumnTypeSource)
		if r.from == "" {
			r.from = firstPresent(columns, "_from", "source", "from")
		}
		r.to = overrideColumn(overrides, models.ColumnTypeTarget)
		if r.to == "" {
			r.to = firstPresent(columns, "_to", "target", "to")
		}
	default:
		r.key = firstPresent(columns, "_key")
	}
	return r
}

func (p *Pipeline) buildTable(raw rawTable, overrides map[string]models.ColumnType) (TablePayload, []models.Issue) {
	tp := TablePayload{Name: raw.Name, Kind: raw.Kind}
	var issues []models.Issue
	issue := func(is models.Issue) {
		is.Table = raw.Name
		issues = append(issues, is)
	}

	sample := sampleIndices(len(raw.Rows), p.opts.SampleSize, p.opts.Seed)
	var columns []string
	for _, i := range sample {
		for _, k := range raw.Rows[i].Keys {
			if !lo.Contains(columns, k) {
				columns = append(columns, k)
			}
		}
	}

	rl := resolveRoles(raw.Kind, columns, overrides)
	if raw.Kind == models.TableKindNode && rl.key == "" {
		issue(models.Issue{Kind: models.IssueKindKey, Message: "node table has no key column (_key or id)", Fatal: true})
	}
	if raw.Kind == models.TableKindEdge && (rl.from == "" || rl.to == "") {
		issue(models.Issue{Kind: models.IssueKindKey, Message: "edge table needs source and target columns", Fatal: true})
	}

	types := make(map[string]models.ColumnType, len(columns))
	var typed []string
	for _, col := range columns {
		switch col {
		case rl.key:
			tp.Columns = append(tp.Columns, models.Column{Name: col, Type: models.ColumnTypePrimary})
			continue
		case rl.from:
			tp.Columns = append(tp.Columns, models.Column{Name: col, Type: models.ColumnTypeSource})
			continue
		case rl.to:
			tp.Columns = append(tp.Columns, models.Column{Name: col, Type: models.ColumnTypeTarget})
			continue
		}

		t, declared := overrides[col]
		switch {
		case declared && (t == models.ColumnTypePrimary || t == models.ColumnTypeSource || t == models.ColumnTypeTarget):
			t = models.ColumnTypeString
		case !declared:
			values := make([]any, len(sample))
			for j, i := range sample {
				values[j] = raw.Rows[i].Values[col]
			}
			res := inference.Infer(values, p.opts.Inference)
			t = res.Type
			switch {
			case res.Fatal:
				issue(models.Issue{
					Kind:    models.IssueKindType,
					Column:  col,
					Message: fmt.Sprintf("column mixes typed and untyped values beyond tolerance (%d of %d)", res.NonConforming, res.NonEmpty),
					Fatal:   true,
				})
			case res.Mixed:
				issue(models.Issue{
					Kind:    models.IssueKindType,
					Column:  col,
					Message: fmt.Sprintf("mixed value types coerced to string (%d of %d)", res.NonConforming, res.NonEmpty),
				})
			}
		}
		if t == models.ColumnTypeIgnored {
			continue
		}
		types[col] = t
		typed = append(typed, col)
		tp.Columns = append(tp.Columns, models.Column{Name: col, Type: t})
	}

	nonConforming := make(map[string]int, len(typed))
	nonEmpty := make(map[string]int, len(typed))
	unknown := make(map[string]struct{})
	keyIndex := make(map[string]int)

	for i, row := range raw.Rows {
		for _, k := range row.Keys {
			if _, ok := unknown[k]; ok || lo.Contains(columns, k) {
				continue
			}
			unknown[k] = struct{}{}
			issue(models.Issue{Kind: models.IssueKindColumn, Column: k, Row: row.Line,
				Message: "column not present in the sampled rows; values dropped"})
		}

		doc := models.Document{Fields: make(map[string]any, len(typed))}
		if rl.key != "" {
			doc.Key = strings.TrimSpace(inference.ToString(row.Values[rl.key]))
		}
		if raw.Kind == models.TableKindNode && doc.Key == "" {
			if rl.key != "" {
				issue(models.Issue{Kind: models.IssueKindKey, Row: row.Line, Column: rl.key, Message: "row has no key; skipped"})
			}
			continue
		}
		if raw.Kind == models.TableKindEdge {
			from, fromOK := qualify(row.Values[rl.from], raw.NodeTable)
			to, toOK := qualify(row.Values[rl.to], raw.NodeTable)
			if !fromOK || !toOK {
				if rl.from != "" && rl.to != "" {
					issue(models.Issue{Kind: models.IssueKindKey, Row: row.Line,
						Message: "edge endpoints must be non-empty table/key references; skipped"})
				}
				continue
			}
			doc.From, doc.To = from, to
		}
		if doc.Key == "" {
			doc.Key = strconv.Itoa(i + 1)
		}

		for _, col := range typed {
			v := row.Values[col]
			if !inference.IsEmpty(v) {
				nonEmpty[col]++
			}
			coerced, err := inference.Coerce(types[col], v)
			if err != nil {
				nonConforming[col]++
				if nonConforming[col] <= maxIssuesPerColumn {
					issue(models.Issue{Kind: models.IssueKindType, Column: col, Row: row.Line,
						Value: inference.ToString(v), Message: err.Error() + "; kept as text"})
				}
				coerced = inference.ToString(v)
			}
			if coerced != nil {
				doc.Fields[col] = coerced
			}
		}

		if prev, dup := keyIndex[doc.Key]; dup {
			issue(models.Issue{Kind: models.IssueKindKey, Row: row.Line, Value: doc.Key,
				Message: "duplicate key; the later row replaces the earlier one"})
			tp.Documents[prev] = doc
			tp.lines[prev] = row.Line
			continue
		}
		keyIndex[doc.Key] = len(tp.Documents)
		tp.Documents = append(tp.Documents, doc)
		tp.lines = append(tp.lines, row.Line)
	}

	for _, col := range typed {
		bad := nonConforming[col]
		if bad > maxIssuesPerColumn {
			issue(models.Issue{Kind: models.IssueKindType, Column: col,
				Message: fmt.Sprintf("%d further values did not conform to %s", bad-maxIssuesPerColumn, types[col])})
		}
		if bad > 0 && float64(bad) > p.opts.Inference.MixedTolerance*float64(nonEmpty[col]) {
			issue(models.Issue{Kind: models.IssueKindType, Column: col, Fatal: true,
				Message: fmt.Sprintf("%d of %d values do not conform to %s", bad, nonEmpty[col], types[col])})
		}
	}

	return tp, issues
}

// qualify turns an endpoint value into "table/key". Bare keys are prefixed
// with nodeTable when one is known.
func qualify(v any, nodeTable string) (string, bool) {
	s := strings.TrimSpace(inference.ToString(v))
	if s == "" {
		return "", false
	}
	if table, key, ok := strings.Cut(s, "/"); ok {
		return s, table != "" && key != ""
	}
	if nodeTable == "" {
		return "", false
	}
	return nodeTable + "/" + s, true
}

func splitRef(ref string) (table, key string) {
	table, key, _ = strings.Cut(ref, "/")
	return table, key
}
