package snapshot

import (
	"fmt"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind tags the type carried by a Value.
type Kind string

const (
	KindCounter Kind = "counter"
	KindGauge   Kind = "gauge"
	KindText    Kind = "text"
	KindRows    Kind = "rows"
)

// Row is one record of a structured row-set, such as one backend in an
// active-query list. Cells are rendered as text by the collector.
type Row map[string]string

// Value is a typed metric value. Exactly one payload field is meaningful,
// selected by Kind.
type Value struct {
	Kind    Kind    `json:"kind"`
	Counter int64   `json:"counter,omitempty"`
	Gauge   float64 `json:"gauge,omitempty"`
	Text    string  `json:"text,omitempty"`
	Rows    []Row   `json:"rows"`
}

// valueWire is the encoded form of Value. Gauges go through wireFloat so
// NaN and the infinities survive encoding.
type valueWire struct {
	Kind    Kind      `json:"kind"`
	Counter int64     `json:"counter,omitempty"`
	Gauge   wireFloat `json:"gauge,omitempty"`
	Text    string    `json:"text,omitempty"`
	Rows    []Row     `json:"rows"`
}

// MarshalJSON encodes the value. Non-finite gauges are written as the
// strings "NaN", "+Inf" and "-Inf".
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueWire{
		Kind:    v.Kind,
		Counter: v.Counter,
		Gauge:   wireFloat(v.Gauge),
		Text:    v.Text,
		Rows:    v.Rows,
	})
}

// UnmarshalJSON decodes what MarshalJSON writes.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w valueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*v = Value{Kind: w.Kind, Counter: w.Counter, Gauge: float64(w.Gauge), Text: w.Text, Rows: w.Rows}
	return nil
}

type wireFloat float64

func (f wireFloat) MarshalJSON() ([]byte, error) {
	x := float64(f)
	switch {
	case math.IsNaN(x):
		return []byte(`"NaN"`), nil
	case math.IsInf(x, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(x, -1):
		return []byte(`"-Inf"`), nil
	}
	return strconv.AppendFloat(nil, x, 'g', -1, 64), nil
}

func (f *wireFloat) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("gauge: %w", err)
	}
	*f = wireFloat(x)
	return nil
}

// Counter returns a monotonically increasing counter value.
func Counter(n int64) Value { return Value{Kind: KindCounter, Counter: n} }

// Gauge returns a point-in-time gauge value.
func Gauge(f float64) Value { return Value{Kind: KindGauge, Gauge: f} }

// Text returns a free-form text value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Rows returns a row-set value. A nil rows argument is normalised to an empty set.
func Rows(rows []Row) Value {
	if rows == nil {
		rows = []Row{}
	}
	return Value{Kind: KindRows, Rows: rows}
}

// Float returns the numeric value of counters and gauges, and parses text.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindCounter:
		return float64(v.Counter), true
	case KindGauge:
		return v.Gauge, true
	case KindText:
		f, err := strconv.ParseFloat(v.Text, 64)
		return f, err == nil
	}
	return 0, false
}

// String renders the value for display.
func (v Value) String() string {
	switch v.Kind {
	case KindCounter:
		return strconv.FormatInt(v.Counter, 10)
	case KindGauge:
		return strconv.FormatFloat(v.Gauge, 'f', -1, 64)
	case KindText:
		return v.Text
	case KindRows:
		return fmt.Sprintf("%d rows", len(v.Rows))
	}
	return ""
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	if v.Rows == nil {
		return v
	}
	out := v
	out.Rows = make([]Row, len(v.Rows))
	for i, row := range v.Rows {
		cp := make(Row, len(row))
		for k, c := range row {
			cp[k] = c
		}
		out.Rows[i] = cp
	}
	return out
}
