package ingest

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"multinet/internal/models"
)

// checkReferences resolves every edge endpoint against the payload's own
// tables first and the committed tables second. Each unresolved endpoint is
// one issue. Within tolerance the offending edges are removed from the
// payload; beyond it every referential issue is marked fatal.
func (p *Pipeline) checkReferences(ctx context.Context, payload *Payload, resolver KeyResolver) ([]models.Issue, error) {
	local := make(map[string]map[string]struct{}, len(payload.Tables))
	for _, t := range payload.Tables {
		if t.Kind == models.TableKindEdge {
			continue
		}
		keys := make(map[string]struct{}, len(t.Documents))
		for _, d := range t.Documents {
			keys[d.Key] = struct{}{}
		}
		local[t.Name] = keys
	}

	external := make(map[string][]string)
	for _, t := range payload.Tables {
		if t.Kind != models.TableKindEdge {
			continue
		}
		for _, d := range t.Documents {
			for _, ref := range []string{d.From, d.To} {
				table, key := splitRef(ref)
				if _, ok := local[table]; !ok {
					external[table] = append(external[table], key)
				}
			}
		}
	}

	resolved := make(map[string]map[string]struct{}, len(external))
	for table, keys := range external {
		if resolver == nil {
			resolved[table] = map[string]struct{}{}
			continue
		}
		found, err := resolver.ExistingKeys(ctx, table, lo.Uniq(keys))
		if err != nil {
			return nil, fmt.Errorf("resolving keys of %s: %w", table, err)
		}
		resolved[table] = found
	}

	exists := func(ref string) bool {
		table, key := splitRef(ref)
		if keys, ok := local[table]; ok {
			_, hit := keys[key]
			return hit
		}
		_, hit := resolved[table][key]
		return hit
	}

	var issues []models.Issue
	dangling := make(map[string]map[int]struct{})
	for ti := range payload.Tables {
		t := &payload.Tables[ti]
		if t.Kind != models.TableKindEdge {
			continue
		}
		for i, d := range t.Documents {
			for _, ref := range []string{d.From, d.To} {
				if exists(ref) {
					continue
				}
				issues = append(issues, models.Issue{
					Kind:    models.IssueKindReferential,
					Table:   t.Name,
					Row:     t.Line(i),
					Value:   ref,
					Message: "edge endpoint does not resolve to an existing node",
				})
				if dangling[t.Name] == nil {
					dangling[t.Name] = make(map[int]struct{})
				}
				dangling[t.Name][i] = struct{}{}
			}
		}
	}

	if len(issues) > p.opts.ReferentialTolerance {
		for i := range issues {
			issues[i].Fatal = true
		}
		return issues, nil
	}

	for ti := range payload.Tables {
		t := &payload.Tables[ti]
		bad := dangling[t.Name]
		if len(bad) == 0 {
			continue
		}
		kept := make([]models.Document, 0, len(t.Documents)-len(bad))
		lines := make([]int, 0, len(t.Documents)-len(bad))
		for i, d := range t.Documents {
			if _, drop := bad[i]; drop {
				continue
			}
			kept = append(kept, d)
			lines = append(lines, t.Line(i))
		}
		t.Documents, t.lines = kept, lines
	}
	return issues, nil
}
