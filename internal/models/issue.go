package models

type IssueKind string

const (
	IssueKindParse       IssueKind = "parse"
	IssueKindType        IssueKind = "type"
	IssueKindColumn      IssueKind = "column"
	IssueKindKey         IssueKind = "key"
	IssueKindReferential IssueKind = "referential"
)

// Issue is a single problem found while ingesting. Row is 1-based and zero
// when the issue is about a whole column or table.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Table   string    `json:"table,omitempty"`
	Column  string    `json:"column,omitempty"`
	Row     int       `json:"row,omitempty"`
	Value   string    `json:"value,omitempty"`
	Message string    `json:"message"`
	Fatal   bool      `json:"fatal,omitempty"`
}

func CountFatal(issues []Issue) int {
	n := 0
	for _, is := range issues {
		if is.Fatal {
			n++
		}
	}
	return n
}
