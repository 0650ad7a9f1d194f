// Package query implements the predicate AST and the three-strategy
// planner/executor of spec.md §4.7: equality conditions combined with And/Or
// compile to index lookups where coverage allows, and otherwise to the
// empty set — this specification requires no full-scan fallback.
package query

import (
	"fmt"
	"sort"

	"github.com/charmful0x/schema-js/internal/mapshard"
	"github.com/charmful0x/schema-js/internal/rowcodec"
	"github.com/charmful0x/schema-js/internal/rowindex"
	"github.com/charmful0x/schema-js/internal/schema"
)

// Op enumerates the comparison operators a Condition may carry. Only Eq is
// implemented; any other operator evaluates to the empty set without error,
// per spec.md §4.7.
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Gt
)

// Predicate is the sealed interface implemented by Condition, And, and Or.
type Predicate interface {
	isPredicate()
}

// Condition is a leaf predicate: key op value.
type Condition struct {
	Key   string
	Op    Op
	Value any
}

func (Condition) isPredicate() {}

// And evaluates to the intersection of its children's ordinal sets.
type And []Predicate

func (And) isPredicate() {}

// Or evaluates to the union of its children's ordinal sets.
type Or []Predicate

func (Or) isPredicate() {}

// IndexSource resolves a table's declared indexes to their backing
// rowindex.Manager, the capability the planner needs for both strategy 1 and
// strategy 2. internal/engine satisfies this with *rowindex.Table.
type IndexSource interface {
	IndexForMembers(tbl *schema.Table, members []string) (schema.Index, *rowindex.Manager, bool)
}

// Executor compiles and runs predicates against one table's rows, resolving
// ordinals through its index manager and decoding matches via the row
// MapShard and row codec.
type Executor struct {
	Table   *schema.Table
	Indexes IndexSource
	Rows    *mapshard.MapShard
}

// Search compiles pred with the three strategies in order and returns the
// matching rows, decoded.
func (ex *Executor) Search(pred Predicate) ([]schema.Document, error) {
	ordinals := ex.execute(pred)
	docs := make([]schema.Document, 0, len(ordinals))
	for ord := range ordinals {
		b, err := ex.Rows.GetElement(ord)
		if err != nil {
			return nil, fmt.Errorf("query: read ordinal %d: %w", ord, err)
		}
		doc, err := rowcodec.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("query: decode ordinal %d: %w", ord, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

type ordinalSet map[uint64]struct{}

func (ex *Executor) execute(pred Predicate) ordinalSet {
	if leaves, ok := equalityLeaves(pred); ok {
		if set, matched := ex.wholeQueryIndexMatch(leaves); matched {
			return set
		}
	}
	return ex.recurse(pred)
}

// equalityLeaves implements strategy 1's collection step: it walks pred and
// returns every Condition reachable without crossing an Or, or ok=false if
// an Or is encountered (no whole-query match is attempted in that case) or
// any collected condition is not Eq.
func equalityLeaves(pred Predicate) ([]Condition, bool) {
	var leaves []Condition
	var walk func(p Predicate) bool
	walk = func(p Predicate) bool {
		switch n := p.(type) {
		case Condition:
			if n.Op != Eq {
				return false
			}
			leaves = append(leaves, n)
			return true
		case And:
			for _, child := range n {
				if !walk(child) {
					return false
				}
			}
			return true
		case Or:
			return false
		default:
			return false
		}
	}
	if !walk(pred) {
		return nil, false
	}
	return leaves, true
}

// wholeQueryIndexMatch implements strategy 1: if leaves' keys form exactly
// the member set of some declared index, perform one composite-key lookup.
func (ex *Executor) wholeQueryIndexMatch(leaves []Condition) (ordinalSet, bool) {
	if len(leaves) == 0 {
		return nil, false
	}
	keys := make([]string, len(leaves))
	values := make(map[string]any, len(leaves))
	for i, c := range leaves {
		keys[i] = c.Key
		values[c.Key] = c.Value
	}
	idx, mgr, ok := ex.Indexes.IndexForMembers(ex.Table, keys)
	if !ok {
		return nil, false
	}
	parts := make([]rowindex.KeyPart, len(idx.Members))
	for i, col := range idx.Members {
		parts[i] = rowindex.KeyPart{Column: col, Value: rowindex.Coerce(values[col])}
	}
	ord, found := mgr.Get(rowindex.ToKey(parts))
	if !found {
		return ordinalSet{}, true
	}
	return ordinalSet{ord: {}}, true
}

// recurse implements strategy 2 (And intersects, Or unions, a standalone
// Condition looks up a single-member index) falling back to strategy 3 (the
// empty set) for anything that yields no index match. Each child is
// re-dispatched through execute, not recurse directly, so a child subtree
// that itself forms the member set of some declared index (an And nested
// under an Or, say) gets its own whole-subtree index match attempt instead
// of degrading straight to single-column lookups.
func (ex *Executor) recurse(pred Predicate) ordinalSet {
	switch n := pred.(type) {
	case And:
		var result ordinalSet
		for i, child := range n {
			set := ex.execute(child)
			if i == 0 {
				result = set
				continue
			}
			result = intersect(result, set)
		}
		if result == nil {
			return ordinalSet{}
		}
		return result
	case Or:
		result := ordinalSet{}
		for _, child := range n {
			union(result, ex.execute(child))
		}
		return result
	case Condition:
		return ex.conditionSet(n)
	default:
		return ordinalSet{}
	}
}

func (ex *Executor) conditionSet(c Condition) ordinalSet {
	if c.Op != Eq {
		return ordinalSet{}
	}
	idx, mgr, ok := ex.Indexes.IndexForMembers(ex.Table, []string{c.Key})
	if !ok {
		return ordinalSet{}
	}
	key := rowindex.ToKey([]rowindex.KeyPart{{Column: idx.Members[0], Value: rowindex.Coerce(c.Value)}})
	ord, found := mgr.Get(key)
	if !found {
		return ordinalSet{}
	}
	return ordinalSet{ord: {}}
}

func intersect(a, b ordinalSet) ordinalSet {
	out := ordinalSet{}
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if _, ok := big[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func union(dst, src ordinalSet) {
	for k := range src {
		dst[k] = struct{}{}
	}
}

// SortedOrdinals is a test/debug helper returning a deterministic ordering of
// a set produced by Search's internals; exported for callers that want stable
// output without depending on map iteration order.
func SortedOrdinals(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
