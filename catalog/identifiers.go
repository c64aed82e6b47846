package catalog

import (
	"sort"
	"strings"
)

// Identifiers is an immutable set of product identifiers.
type Identifiers struct {
	set map[string]struct{}
}

// NewIdentifiers builds a set from ids. Duplicates and empty strings are
// dropped.
func NewIdentifiers(ids ...string) Identifiers {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		set[id] = struct{}{}
	}
	return Identifiers{set: set}
}

func (s Identifiers) Len() int {
	return len(s.set)
}

func (s Identifiers) IsEmpty() bool {
	return len(s.set) == 0
}

func (s Identifiers) Contains(id string) bool {
	_, ok := s.set[id]
	return ok
}

// Slice returns the identifiers in sorted order.
func (s Identifiers) Slice() []string {
	ids := make([]string, 0, len(s.set))
	for id := range s.set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s Identifiers) Equal(other Identifiers) bool {
	if s.Len() != other.Len() {
		return false
	}
	for id := range s.set {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// Key is a canonical string form of the set, usable as a map or cache key.
func (s Identifiers) Key() string {
	return strings.Join(s.Slice(), "\x00")
}

func (s Identifiers) String() string {
	return "[" + strings.Join(s.Slice(), ",") + "]"
}
