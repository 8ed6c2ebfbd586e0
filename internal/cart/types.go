// Package cart owns the shopping cart state: a process-wide store seeded
// from local storage, persisted on every mutation, and reconciled with the
// shopper's remote account cart when a session is authenticated.
package cart

import (
	"sort"
	"strings"
	"time"
)

// Kind distinguishes the two item families a cart can hold.
type Kind string

const (
	// KindInstance is a concrete configured product.
	KindInstance Kind = "instance"
	// KindAccessory is a catalog accessory.
	KindAccessory Kind = "accessory"
)

// ParseKind validates a raw kind value. Unlike the catalog mode, an
// unrecognized kind is a validation failure, not a coercion.
func ParseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindInstance:
		return KindInstance, true
	case KindAccessory:
		return KindAccessory, true
	default:
		return "", false
	}
}

// Item is one cart line. Price is in minor currency units.
type Item struct {
	ID      uint64    `json:"id"`
	Kind    Kind      `json:"type"`
	Price   int64     `json:"price"`
	AddedAt time.Time `json:"addedAt"`
}

// Key is an item's identity within the cart; no two items may share one.
type Key struct {
	Kind Kind
	ID   uint64
}

// Key returns the item's identity key.
func (i Item) Key() Key {
	return Key{Kind: i.Kind, ID: i.ID}
}

// State is the cart payload persisted locally and exchanged with the remote
// account store.
type State struct {
	Items       []Item    `json:"items"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	dup := s
	if s.Items != nil {
		dup.Items = make([]Item, len(s.Items))
		copy(dup.Items, s.Items)
	}
	return dup
}

// IsEmpty reports whether the cart holds no items.
func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

// Equal compares two carts by their item lists, ignoring LastUpdated.
func (s State) Equal(other State) bool {
	if len(s.Items) != len(other.Items) {
		return false
	}
	for i, item := range s.Items {
		if other.Items[i] != item {
			return false
		}
	}
	return true
}

// normalize drops items that violate the invariants (zero id, unknown kind,
// non-positive price) and collapses duplicate identity keys, keeping the
// earliest occurrence. Externally sourced carts (disk, remote) pass through
// here so no illegal state can enter the store.
func normalize(state State) State {
	out := State{LastUpdated: state.LastUpdated.UTC()}
	seen := make(map[Key]struct{}, len(state.Items))
	for _, item := range state.Items {
		kind, ok := ParseKind(string(item.Kind))
		if !ok || item.ID == 0 || item.Price <= 0 {
			continue
		}
		item.Kind = kind
		if _, dup := seen[item.Key()]; dup {
			continue
		}
		seen[item.Key()] = struct{}{}
		item.AddedAt = item.AddedAt.UTC()
		out.Items = append(out.Items, item)
	}
	sort.SliceStable(out.Items, func(i, j int) bool {
		return out.Items[i].AddedAt.Before(out.Items[j].AddedAt)
	})
	return out
}

// Snapshot is the full cart store state handed to consumers as a deep copy.
type Snapshot struct {
	Cart            State
	IsAuthenticated bool
	AccountID       string
	IsLoading       bool
	Err             error
}

func cloneSnapshot(s Snapshot) Snapshot {
	dup := s
	dup.Cart = s.Cart.Clone()
	return dup
}

// ItemEvent is broadcast when a single item is added or removed; it carries
// the affected item and the resulting cart.
type ItemEvent struct {
	Item Item
	Cart State
}

// UpdatedEvent is broadcast after every committed cart change.
type UpdatedEvent struct {
	Cart State
}
