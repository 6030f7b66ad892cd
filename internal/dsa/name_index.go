// Package dsa provides data structures for local filtering of loaded lists.
// Uses go-radix for a compressed prefix tree.
package dsa

import (
	"slices"
	"strings"
	"unicode"

	"github.com/armon/go-radix"
)

// sep separates a word from the owning id inside a tree key. It sorts
// before every printable rune so all owners of a word are adjacent.
const sep = "\x00"

// NameIndex maps display names to ids for word-prefix lookup. Each word
// of a name is stored as its own key, so "ali" finds "Alice Smith" and
// "smi" finds it too.
//
// Time Complexity: O(k + m) per lookup where k is the query length and m
// the number of matching keys.
//
// Not safe for concurrent use.
type NameIndex struct {
	tree  *radix.Tree
	names map[string]string // id -> indexed name
}

// NewNameIndex creates an empty index.
func NewNameIndex() *NameIndex {
	return &NameIndex{
		tree:  radix.New(),
		names: make(map[string]string),
	}
}

// Insert indexes name under id, replacing any earlier name for id.
func (x *NameIndex) Insert(id, name string) {
	if old, ok := x.names[id]; ok {
		if old == name {
			return
		}
		x.Delete(id)
	}
	x.names[id] = name
	for _, w := range words(name) {
		x.tree.Insert(w+sep+id, id)
	}
}

// Delete removes id from the index. Returns true if it was present.
func (x *NameIndex) Delete(id string) bool {
	name, ok := x.names[id]
	if !ok {
		return false
	}
	for _, w := range words(name) {
		x.tree.Delete(w + sep + id)
	}
	delete(x.names, id)
	return true
}

// Match returns the ids whose names contain, for every word of query, a
// word starting with it. An empty query matches everything. Results are
// sorted.
func (x *NameIndex) Match(query string) []string {
	terms := words(query)
	if len(terms) == 0 {
		return x.IDs()
	}

	var hits map[string]bool
	for _, term := range terms {
		found := make(map[string]bool)
		x.tree.WalkPrefix(term, func(_ string, v interface{}) bool {
			id := v.(string)
			if hits == nil || hits[id] {
				found[id] = true
			}
			return false
		})
		hits = found
		if len(hits) == 0 {
			return nil
		}
	}

	out := make([]string, 0, len(hits))
	for id := range hits {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// HasPrefix reports whether any indexed word starts with prefix.
func (x *NameIndex) HasPrefix(prefix string) bool {
	found := false
	x.tree.WalkPrefix(strings.ToLower(prefix), func(string, interface{}) bool {
		found = true
		return true
	})
	return found
}

// IDs returns every indexed id, sorted.
func (x *NameIndex) IDs() []string {
	out := make([]string, 0, len(x.names))
	for id := range x.names {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Size returns the number of indexed ids.
func (x *NameIndex) Size() int {
	return len(x.names)
}

// Clear removes everything.
func (x *NameIndex) Clear() {
	x.tree = radix.New()
	x.names = make(map[string]string)
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
