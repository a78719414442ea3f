package query

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/wbrown/janus-generate/generate"
)

// Binding is an immutable assignment of variables to concrete terms.
// Every "modifying" operation returns a new Binding and leaves the receiver
// untouched, so bindings can be shared freely between goroutines.
// The zero value is the empty binding.
type Binding struct {
	vals map[Var]generate.Term
}

// NewBinding creates a binding from a map; nil terms are dropped
func NewBinding(vals map[Var]generate.Term) Binding {
	b := Binding{vals: make(map[Var]generate.Term, len(vals))}
	for k, v := range vals {
		if v != nil {
			b.vals[k] = v
		}
	}
	return b
}

// Get returns the term bound to v
func (b Binding) Get(v Var) (generate.Term, bool) {
	t, ok := b.vals[v]
	return t, ok
}

// Has reports whether v is bound
func (b Binding) Has(v Var) bool {
	_, ok := b.vals[v]
	return ok
}

// Len returns the number of bound variables
func (b Binding) Len() int {
	return len(b.vals)
}

func (b Binding) copyWith(extra int) map[Var]generate.Term {
	m := make(map[Var]generate.Term, len(b.vals)+extra)
	for k, v := range b.vals {
		m[k] = v
	}
	return m
}

// Extend returns a binding with v bound to t. A nil term leaves v unbound.
func (b Binding) Extend(v Var, t generate.Term) Binding {
	if t == nil {
		return b
	}
	m := b.copyWith(1)
	m[v] = t
	return Binding{vals: m}
}

// ExtendAll binds vars positionally to terms. Missing or nil terms leave the
// corresponding variable unbound.
func (b Binding) ExtendAll(vars []Var, terms []generate.Term) Binding {
	m := b.copyWith(len(vars))
	for i, v := range vars {
		if i < len(terms) && terms[i] != nil {
			m[v] = terms[i]
		}
	}
	return Binding{vals: m}
}

// Compatible reports whether b and other agree on every shared variable
func (b Binding) Compatible(other Binding) bool {
	small, large := b, other
	if len(small.vals) > len(large.vals) {
		small, large = large, small
	}
	for k, v := range small.vals {
		if ov, ok := large.vals[k]; ok && !generate.Equal(v, ov) {
			return false
		}
	}
	return true
}

// Merge returns the union of two compatible bindings; ok is false on conflict
func (b Binding) Merge(other Binding) (Binding, bool) {
	if !b.Compatible(other) {
		return Binding{}, false
	}
	if len(other.vals) == 0 {
		return b, true
	}
	m := b.copyWith(len(other.vals))
	for k, v := range other.vals {
		m[k] = v
	}
	return Binding{vals: m}, true
}

// Project keeps only the given variables
func (b Binding) Project(vars []Var) Binding {
	m := make(map[Var]generate.Term, len(vars))
	for _, v := range vars {
		if t, ok := b.vals[v]; ok {
			m[v] = t
		}
	}
	return Binding{vals: m}
}

// Vars returns the bound variables in sorted order
func (b Binding) Vars() []Var {
	vars := make([]Var, 0, len(b.vals))
	for k := range b.vals {
		vars = append(vars, k)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	return vars
}

// Key returns a canonical string; structurally equal bindings have equal keys
func (b Binding) Key() string {
	var sb strings.Builder
	for _, v := range b.Vars() {
		sb.WriteString(string(v))
		sb.WriteByte('=')
		sb.WriteString(b.vals[v].String())
		sb.WriteByte(';')
	}
	return sb.String()
}

// Hash returns a 64-bit hash of Key, for bucketing
func (b Binding) Hash() uint64 {
	return xxhash.Sum64String(b.Key())
}

// Equal reports structural equality
func (b Binding) Equal(other Binding) bool {
	if len(b.vals) != len(other.vals) {
		return false
	}
	for k, v := range b.vals {
		if ov, ok := other.vals[k]; !ok || !generate.Equal(v, ov) {
			return false
		}
	}
	return true
}

func (b Binding) String() string {
	parts := make([]string, 0, len(b.vals))
	for _, v := range b.Vars() {
		parts = append(parts, string(v)+"="+b.vals[v].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// BindingSet collects distinct bindings, preserving first-insertion order
type BindingSet struct {
	buckets map[uint64][]int
	items   []Binding
}

// NewBindingSet creates an empty set
func NewBindingSet() *BindingSet {
	return &BindingSet{buckets: make(map[uint64][]int)}
}

// Add inserts b unless an equal binding exists; returns its index
func (s *BindingSet) Add(b Binding) (int, bool) {
	h := b.Hash()
	for _, idx := range s.buckets[h] {
		if s.items[idx].Equal(b) {
			return idx, false
		}
	}
	s.items = append(s.items, b)
	s.buckets[h] = append(s.buckets[h], len(s.items)-1)
	return len(s.items) - 1, true
}

// Items returns the distinct bindings in insertion order
func (s *BindingSet) Items() []Binding {
	return s.items
}

// Len returns the number of distinct bindings
func (s *BindingSet) Len() int {
	return len(s.items)
}
