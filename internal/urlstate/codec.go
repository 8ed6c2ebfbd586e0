// Package urlstate maps the catalog query state onto an address-line query
// string and back, and owns the history bridge that keeps the two in sync.
package urlstate

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Mode selects which side of the catalog a query addresses.
type Mode string

const (
	// ModeType browses the product type catalog.
	ModeType Mode = "type"
	// ModeInstance browses concrete product instances.
	ModeInstance Mode = "instance"
)

const (
	paramMode    = "mode"
	paramPage    = "page"
	paramPerPage = "per_page"
	paramSearch  = "search"
	paramSort    = "sort"

	filterParamPrefix = "filters["
	filterParamSuffix = "]"
)

// QueryState is the canonical catalog query. Filter values are kept as
// sorted, de-duplicated, non-empty sets; an empty set is never stored.
type QueryState struct {
	Mode    Mode
	Page    int
	PerPage int
	Search  string
	Sort    string
	Filters map[string][]string
}

// Clone returns a deep copy of the query state.
func (q QueryState) Clone() QueryState {
	dup := q
	dup.Filters = cloneFilters(q.Filters)
	return dup
}

// Equal reports whether two query states are structurally identical. It is
// the change-detection gate used to break store/address feedback loops.
func (q QueryState) Equal(other QueryState) bool {
	if q.Mode != other.Mode || q.Page != other.Page || q.PerPage != other.PerPage {
		return false
	}
	if q.Search != other.Search || q.Sort != other.Sort {
		return false
	}
	if len(q.Filters) != len(other.Filters) {
		return false
	}
	for key, values := range q.Filters {
		theirs, ok := other.Filters[key]
		if !ok || len(theirs) != len(values) {
			return false
		}
		for i, value := range values {
			if theirs[i] != value {
				return false
			}
		}
	}
	return true
}

// Patch carries a partial query-state update. Nil fields are untouched; a
// non-nil Filters replaces the whole filter map.
type Patch struct {
	Mode    *Mode
	Page    *int
	PerPage *int
	Search  *string
	Sort    *string
	Filters map[string][]string
}

// ToPatch converts a full state into a patch that sets every field, used
// when a store pushes its whole state through the bridge.
func (q QueryState) ToPatch() Patch {
	mode := q.Mode
	page := q.Page
	perPage := q.PerPage
	search := q.Search
	sortBy := q.Sort
	filters := cloneFilters(q.Filters)
	if filters == nil {
		filters = map[string][]string{}
	}
	return Patch{
		Mode:    &mode,
		Page:    &page,
		PerPage: &perPage,
		Search:  &search,
		Sort:    &sortBy,
		Filters: filters,
	}
}

// Defaults configures the codec's fallback values. Serialization omits any
// field still at its default so addresses stay minimal and stable.
type Defaults struct {
	Mode    Mode
	PerPage int
	Sort    string
}

const fallbackPerPage = 24

// Codec converts query states to and from address query strings. It is pure;
// the same codec instance can safely be shared.
type Codec struct {
	defaults Defaults
}

// NewCodec builds a codec around the provided defaults, repairing any that
// are unusable.
func NewCodec(defaults Defaults) *Codec {
	if defaults.Mode != ModeType && defaults.Mode != ModeInstance {
		defaults.Mode = ModeType
	}
	if defaults.PerPage < 1 {
		defaults.PerPage = fallbackPerPage
	}
	return &Codec{defaults: defaults}
}

// Defaults exposes the codec's configured defaults.
func (c *Codec) Defaults() Defaults {
	return c.defaults
}

// DefaultState returns the query state every field of which is at its
// default.
func (c *Codec) DefaultState() QueryState {
	return QueryState{
		Mode:    c.defaults.Mode,
		Page:    1,
		PerPage: c.defaults.PerPage,
		Sort:    c.defaults.Sort,
	}
}

// Parse decodes a raw query string into a normalized QueryState. Unknown
// keys are ignored, malformed scalars fall back to defaults, repeated filter
// values collapse to a set, and blank filter values are dropped. Parse never
// fails: undecodable input degrades to the default state.
func (c *Codec) Parse(rawQuery string) QueryState {
	values, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil && len(values) == 0 {
		return c.DefaultState()
	}

	state := c.DefaultState()

	if raw, ok := firstValue(values, paramMode); ok {
		state.Mode = c.normalizeMode(raw)
	}
	if raw, ok := firstValue(values, paramPage); ok {
		if page, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && page >= 1 {
			state.Page = page
		}
	}
	if raw, ok := firstValue(values, paramPerPage); ok {
		if perPage, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && perPage >= 1 {
			state.PerPage = perPage
		}
	}
	if raw, ok := firstValue(values, paramSearch); ok {
		state.Search = strings.TrimSpace(raw)
	}
	if raw, ok := firstValue(values, paramSort); ok {
		state.Sort = strings.TrimSpace(raw)
	}

	for key, raws := range values {
		filterKey, ok := filterKeyName(key)
		if !ok {
			continue
		}
		for _, raw := range raws {
			value := strings.TrimSpace(raw)
			if value == "" {
				continue
			}
			if state.Filters == nil {
				state.Filters = map[string][]string{}
			}
			state.Filters[filterKey] = append(state.Filters[filterKey], value)
		}
	}

	return c.Normalize(state)
}

// Normalize coerces an arbitrary query state into the canonical
// invariant-respecting shape: clamped pagination, recognized mode, trimmed
// strings, and sorted de-duplicated filter sets with empty sets removed.
func (c *Codec) Normalize(state QueryState) QueryState {
	out := state
	out.Mode = c.normalizeMode(string(state.Mode))
	if out.Page < 1 {
		out.Page = 1
	}
	if out.PerPage < 1 {
		out.PerPage = c.defaults.PerPage
	}
	out.Search = strings.TrimSpace(state.Search)
	out.Sort = strings.TrimSpace(state.Sort)
	if out.Sort == "" {
		out.Sort = c.defaults.Sort
	}
	out.Filters = normalizeFilters(state.Filters)
	return out
}

// Merge applies a patch on top of the provided state and normalizes the
// result.
func (c *Codec) Merge(state QueryState, patch Patch) QueryState {
	next := state.Clone()
	if patch.Mode != nil {
		next.Mode = *patch.Mode
	}
	if patch.Page != nil {
		next.Page = *patch.Page
	}
	if patch.PerPage != nil {
		next.PerPage = *patch.PerPage
	}
	if patch.Search != nil {
		next.Search = *patch.Search
	}
	if patch.Sort != nil {
		next.Sort = *patch.Sort
	}
	if patch.Filters != nil {
		next.Filters = cloneFilters(patch.Filters)
	}
	return c.Normalize(next)
}

// Serialize encodes a query state as a deterministic query string without
// the leading "?". Only non-default values are emitted; filter keys appear
// in sorted order so that serialization is idempotent.
func (c *Codec) Serialize(state QueryState) string {
	normalized := c.Normalize(state)

	var pairs []string
	appendPair := func(key, value string) {
		pairs = append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(value))
	}

	if normalized.Mode != c.defaults.Mode {
		appendPair(paramMode, string(normalized.Mode))
	}
	if normalized.Page > 1 {
		appendPair(paramPage, strconv.Itoa(normalized.Page))
	}
	if normalized.PerPage != c.defaults.PerPage {
		appendPair(paramPerPage, strconv.Itoa(normalized.PerPage))
	}
	if normalized.Search != "" {
		appendPair(paramSearch, normalized.Search)
	}
	if normalized.Sort != c.defaults.Sort {
		appendPair(paramSort, normalized.Sort)
	}

	filterKeys := make([]string, 0, len(normalized.Filters))
	for key := range normalized.Filters {
		filterKeys = append(filterKeys, key)
	}
	sort.Strings(filterKeys)
	for _, key := range filterKeys {
		param := filterParamPrefix + url.QueryEscape(key) + filterParamSuffix
		for _, value := range normalized.Filters[key] {
			pairs = append(pairs, param+"="+url.QueryEscape(value))
		}
	}

	return strings.Join(pairs, "&")
}

func (c *Codec) normalizeMode(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeType:
		return ModeType
	case ModeInstance:
		return ModeInstance
	default:
		return c.defaults.Mode
	}
}

func firstValue(values url.Values, key string) (string, bool) {
	raws, ok := values[key]
	if !ok || len(raws) == 0 {
		return "", false
	}
	return raws[0], true
}

func filterKeyName(param string) (string, bool) {
	if !strings.HasPrefix(param, filterParamPrefix) || !strings.HasSuffix(param, filterParamSuffix) {
		return "", false
	}
	key := strings.TrimSpace(param[len(filterParamPrefix) : len(param)-len(filterParamSuffix)])
	if key == "" {
		return "", false
	}
	return key, true
}

func normalizeFilters(filters map[string][]string) map[string][]string {
	if len(filters) == 0 {
		return nil
	}
	out := make(map[string][]string, len(filters))
	for rawKey, rawValues := range filters {
		key := strings.TrimSpace(rawKey)
		if key == "" {
			continue
		}
		seen := make(map[string]struct{}, len(rawValues))
		values := make([]string, 0, len(rawValues))
		for _, raw := range rawValues {
			value := strings.TrimSpace(raw)
			if value == "" {
				continue
			}
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			values = append(values, value)
		}
		if len(values) == 0 {
			continue
		}
		sort.Strings(values)
		out[key] = values
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneFilters(filters map[string][]string) map[string][]string {
	if len(filters) == 0 {
		return nil
	}
	out := make(map[string][]string, len(filters))
	for key, values := range filters {
		dup := make([]string, len(values))
		copy(dup, values)
		out[key] = dup
	}
	return out
}
