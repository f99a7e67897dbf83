// Package snapshot defines the immutable per-tick view of every monitored source.
package snapshot

import (
	"sort"
	"time"
)

// SourceID identifies one independently-polled backend within a session.
type SourceID string

// Well-known source identifiers. Configured sources may use any id; these are
// the defaults the registry assigns when a source omits one.
const (
	SourcePrimary SourceID = "primary"
	SourcePool    SourceID = "pool"
	SourceSystem  SourceID = "system"
	SourceCloud   SourceID = "cloud"
)

// Status describes how trustworthy a SourceReading is for the tick it belongs to.
type Status string

const (
	StatusOK          Status = "ok"
	StatusDegraded    Status = "degraded"    // partial fields populated
	StatusStale       Status = "stale"       // previous reading reused
	StatusUnavailable Status = "unavailable" // never successfully read
)

// Fresh reports whether the reading came from this tick's fetch.
func (s Status) Fresh() bool {
	return s == StatusOK || s == StatusDegraded
}

// LogicalTime pairs a wall-clock instant with a monotonic offset from the
// session start. Mono is what cadence math uses; Wall is what operators see.
type LogicalTime struct {
	Wall time.Time     `json:"wall"`
	Mono time.Duration `json:"mono"`
}

// SourceReading is the result of one collector for one tick.
type SourceReading struct {
	Status    Status           `json:"status"`
	Fields    map[string]Value `json:"fields"`
	FetchedAt time.Time        `json:"fetched_at"`
	// Error carries the cause when the reading is stale or unavailable.
	Error string `json:"error,omitempty"`
}

// Field returns the named field and whether it exists.
func (r SourceReading) Field(name string) (Value, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// FieldNames returns the reading's field names in sorted order.
func (r SourceReading) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot is one immutable, fully-merged reading of all active sources at
// one logical instant. Consumers hold borrowed references and must Clone
// before retaining a Snapshot past the next tick.
type Snapshot struct {
	Sequence   uint64                     `json:"sequence"`
	CapturedAt LogicalTime                `json:"captured_at"`
	Sources    map[SourceID]SourceReading `json:"sources"`
	// Elapsed is the composition wall time for this tick.
	Elapsed time.Duration `json:"elapsed"`
	// Interval is the time since the previous tick started (zero for the first).
	Interval time.Duration `json:"interval"`
}

// Reading returns the reading for id and whether the source is configured.
func (s Snapshot) Reading(id SourceID) (SourceReading, bool) {
	r, ok := s.Sources[id]
	return r, ok
}

// SourceIDs returns the snapshot's source keys in sorted order.
func (s Snapshot) SourceIDs() []SourceID {
	ids := make([]SourceID, 0, len(s.Sources))
	for id := range s.Sources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Healthy reports whether every source in the snapshot is fresh.
func (s Snapshot) Healthy() bool {
	for _, r := range s.Sources {
		if !r.Status.Fresh() {
			return false
		}
	}
	return true
}

// AllUnavailable reports whether no source produced or retained any data.
func (s Snapshot) AllUnavailable() bool {
	for _, r := range s.Sources {
		if r.Status != StatusUnavailable {
			return false
		}
	}
	return true
}

// Clone returns a deep copy that is safe to retain and mutate.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Sources != nil {
		out.Sources = make(map[SourceID]SourceReading, len(s.Sources))
		for id, r := range s.Sources {
			out.Sources[id] = r.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the reading.
func (r SourceReading) Clone() SourceReading {
	out := r
	if r.Fields != nil {
		out.Fields = make(map[string]Value, len(r.Fields))
		for name, v := range r.Fields {
			out.Fields[name] = v.Clone()
		}
	}
	return out
}
