// Package catalog holds the canonical catalog browsing state: the query the
// shopper is looking at, the result metadata that came back for it, and the
// store that keeps both in sync with the address line.
package catalog

import (
	"github.com/hanko-field/storefront/internal/urlstate"
)

// Meta is derived result metadata. It is informational only and never
// round-trips through the address line.
type Meta struct {
	Total            int
	TotalPages       int
	AvailableFilters map[string][]string
	FacetCounts      map[string]map[string]int
}

// Clone returns a deep copy of the metadata.
func (m Meta) Clone() Meta {
	dup := m
	if m.AvailableFilters != nil {
		dup.AvailableFilters = make(map[string][]string, len(m.AvailableFilters))
		for key, values := range m.AvailableFilters {
			vs := make([]string, len(values))
			copy(vs, values)
			dup.AvailableFilters[key] = vs
		}
	}
	if m.FacetCounts != nil {
		dup.FacetCounts = make(map[string]map[string]int, len(m.FacetCounts))
		for key, counts := range m.FacetCounts {
			cs := make(map[string]int, len(counts))
			for value, count := range counts {
				cs[value] = count
			}
			dup.FacetCounts[key] = cs
		}
	}
	return dup
}

// Snapshot is the full catalog store state handed to consumers. Consumers
// always receive deep copies, never the live value.
type Snapshot struct {
	State     urlstate.QueryState
	Meta      Meta
	IsLoading bool
	Err       error
}

func cloneSnapshot(s Snapshot) Snapshot {
	return Snapshot{
		State:     s.State.Clone(),
		Meta:      s.Meta.Clone(),
		IsLoading: s.IsLoading,
		Err:       s.Err,
	}
}

// Updated is the event broadcast after every committed catalog change so
// collaborators without a store reference can still react.
type Updated struct {
	State     urlstate.QueryState
	Meta      Meta
	IsLoading bool
	Err       error
	Prev      urlstate.QueryState
}
