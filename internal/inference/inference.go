// Package inference decides a column type from a sample of raw values and
// coerces values to that type.
package inference

import (
	"math"
	"strconv"
	"strings"

	"multinet/internal/models"
)

type Options struct {
	// Tolerance is the share of non-empty values allowed to miss a typed rule
	// (boolean, number, date) while still inferring that type.
	Tolerance float64
	// MixedTolerance bounds the minority share of a column that mixes typed
	// and untyped values. At or below it the column falls back to string;
	// above it the column is fatal.
	MixedTolerance      float64
	CategoryMaxDistinct int
	CategoryMaxRatio    float64
}

func DefaultOptions() Options {
	return Options{
		Tolerance:           0,
		MixedTolerance:      0.2,
		CategoryMaxDistinct: 10,
		CategoryMaxRatio:    0.5,
	}
}

type Result struct {
	Type          models.ColumnType
	NonEmpty      int
	Empty         int
	Distinct      int
	NonConforming int
	// Mixed is set when typed and untyped values were coerced to string.
	Mixed bool
	// Fatal is set when the mix exceeds MixedTolerance.
	Fatal bool
}

// precedence is the order typed rules are tried in.
var precedence = []models.ColumnType{
	models.ColumnTypeBoolean,
	models.ColumnTypeNumber,
	models.ColumnTypeDate,
}

// Infer applies the rules in precedence order to samples. Empty values are
// counted but never vote.
func Infer(samples []any, opts Options) Result {
	var res Result
	conforming := make(map[models.ColumnType]int, len(precedence))
	distinct := make(map[string]struct{})

	for _, v := range samples {
		if IsEmpty(v) {
			res.Empty++
			continue
		}
		res.NonEmpty++
		distinct[ToString(v)] = struct{}{}
		for _, t := range precedence {
			if Conforms(t, v) {
				conforming[t]++
			}
		}
	}
	res.Distinct = len(distinct)

	if res.NonEmpty == 0 {
		res.Type = models.ColumnTypeLabel
		return res
	}

	allowed := opts.Tolerance * float64(res.NonEmpty)
	for _, t := range precedence {
		miss := res.NonEmpty - conforming[t]
		if float64(miss) <= allowed {
			res.Type = t
			res.NonConforming = miss
			return res
		}
	}

	best := 0
	for _, t := range precedence {
		best = max(best, conforming[t])
	}
	if best == 0 {
		if isCategory(res, opts) {
			res.Type = models.ColumnTypeCategory
		} else {
			res.Type = models.ColumnTypeLabel
		}
		return res
	}

	minority := min(best, res.NonEmpty-best)
	res.Type = models.ColumnTypeString
	res.NonConforming = minority
	if float64(minority) <= opts.MixedTolerance*float64(res.NonEmpty) {
		res.Mixed = true
	} else {
		res.Fatal = true
	}
	return res
}

func isCategory(res Result, opts Options) bool {
	if res.Distinct > opts.CategoryMaxDistinct {
		return false
	}
	return float64(res.Distinct) <= opts.CategoryMaxRatio*float64(res.NonEmpty)
}

// Conforms reports whether v satisfies the typed rule t. Native JSON values
// only conform to their own type.
func Conforms(t models.ColumnType, v any) bool {
	switch val := v.(type) {
	case bool:
		return t == models.ColumnTypeBoolean
	case float64, float32, int, int32, int64:
		return t == models.ColumnTypeNumber
	case string:
		s := strings.TrimSpace(val)
		switch t {
		case models.ColumnTypeBoolean:
			_, ok := ParseBool(s)
			return ok
		case models.ColumnTypeNumber:
			_, ok := ParseNumber(s)
			return ok
		case models.ColumnTypeDate:
			_, ok := ParseDate(s)
			return ok
		}
	}
	return false
}

func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

// ParseBool accepts true/false, yes/no, on/off and 0/1, case-insensitively.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, true
	case "false", "no", "off", "0":
		return false, true
	}
	return false, false
}

// ParseNumber parses locale-invariant decimal notation. Integers come back as
// int64, everything else as float64.
func ParseNumber(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.ContainsAny(s, "xXpP_") {
		return nil, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}
