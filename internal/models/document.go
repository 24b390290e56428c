package models

// Document is one row as stored in the graph store. Key is set for node rows,
// From/To (as "table/key") for edge rows.
type Document struct {
	Key    string         `json:"_key,omitempty"`
	From   string         `json:"_from,omitempty"`
	To     string         `json:"_to,omitempty"`
	Fields map[string]any `json:"fields"`
}

// Flatten returns the row as a single map with the reserved keys inlined.
func (d Document) Flatten() map[string]any {
	out := make(map[string]any, len(d.Fields)+3)
	for k, v := range d.Fields {
		out[k] = v
	}
	if d.Key != "" {
		out["_key"] = d.Key
	}
	if d.From != "" {
		out["_from"] = d.From
	}
	if d.To != "" {
		out["_to"] = d.To
	}
	return out
}
