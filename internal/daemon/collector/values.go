package collector

import (
	"strconv"
	"strings"

	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// rowSpec describes how the columns of a single-row result become fields.
// Columns listed in counters are parsed as integers and columns listed in
// texts are kept verbatim; other numeric columns become gauges.
type rowSpec struct {
	prefix   string
	counters map[string]bool
	texts    map[string]bool
}

func newRowSpec(prefix string, counters ...string) rowSpec {
	spec := rowSpec{prefix: prefix, counters: make(map[string]bool, len(counters))}
	for _, c := range counters {
		spec.counters[c] = true
	}
	return spec
}

// withText marks columns that must stay text even when they look numeric.
func (s rowSpec) withText(columns ...string) rowSpec {
	s.texts = make(map[string]bool, len(columns))
	for _, c := range columns {
		s.texts[c] = true
	}
	return s
}

// apply copies row into fields using the spec's typing rules.
func (s rowSpec) apply(row map[string]string, fields map[string]snapshot.Value) {
	for col, raw := range row {
		name := col
		if s.prefix != "" {
			name = s.prefix + "." + col
		}
		if s.texts[col] {
			fields[name] = snapshot.Text(raw)
			continue
		}
		fields[name] = parseValue(raw, s.counters[col])
	}
}

// parseValue types a text value. A counter that fails to parse falls back to
// a gauge, then text.
func parseValue(raw string, counter bool) snapshot.Value {
	trimmed := strings.TrimSpace(raw)
	if counter {
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return snapshot.Counter(n)
		}
	}
	if trimmed != "" {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return snapshot.Gauge(f)
		}
	}
	return snapshot.Text(raw)
}

// toRows converts query results into a row-set value.
func toRows(rows []map[string]string) snapshot.Value {
	out := make([]snapshot.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, snapshot.Row(r))
	}
	return snapshot.Rows(out)
}

// sumColumns adds integer columns across rows, skipping unparsable cells.
func sumColumns(rows []map[string]string, columns ...string) map[string]int64 {
	sums := make(map[string]int64, len(columns))
	for _, col := range columns {
		sums[col] = 0
	}
	for _, row := range rows {
		for _, col := range columns {
			if n, err := strconv.ParseInt(strings.TrimSpace(row[col]), 10, 64); err == nil {
				sums[col] += n
			}
		}
	}
	return sums
}
