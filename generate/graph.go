package generate

import (
	"bufio"
	"io"
	"sort"
	"sync"
)

// Graph is a thread-safe, append-only set of triples.
// Adding the same triple twice is a no-op, so union of graphs is
// commutative and idempotent.
type Graph struct {
	mu      sync.RWMutex
	triples map[string]Triple
	// byPredicate indexes triple keys by predicate for pattern matching
	byPredicate map[string][]string
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		triples:     make(map[string]Triple),
		byPredicate: make(map[string][]string),
	}
}

// Add inserts a triple, returning false if it was already present or invalid
func (g *Graph) Add(t Triple) bool {
	if !t.Valid() {
		return false
	}
	key := t.String()

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addLocked(key, t)
}

func (g *Graph) addLocked(key string, t Triple) bool {
	if _, ok := g.triples[key]; ok {
		return false
	}
	g.triples[key] = t
	p := t.P.String()
	g.byPredicate[p] = append(g.byPredicate[p], key)
	return true
}

// AddAll inserts triples under a single lock acquisition
func (g *Graph) AddAll(triples []Triple) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	added := 0
	for _, t := range triples {
		if !t.Valid() {
			continue
		}
		if g.addLocked(t.String(), t) {
			added++
		}
	}
	return added
}

// Merge adds every triple of other into g. The merge is atomic with respect
// to readers of g: they observe either none or all of other's triples.
func (g *Graph) Merge(other *Graph) int {
	if other == nil || other == g {
		return 0
	}
	return g.AddAll(other.Triples())
}

// Len returns the number of triples
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.triples)
}

// Contains reports whether the triple is present
func (g *Graph) Contains(t Triple) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.triples[t.String()]
	return ok
}

// Triples returns a snapshot of all triples in deterministic (N-Triples) order
func (g *Graph) Triples() []Triple {
	g.mu.RLock()
	keys := make([]string, 0, len(g.triples))
	for k := range g.triples {
		keys = append(keys, k)
	}
	g.mu.RUnlock()

	sort.Strings(keys)

	g.mu.RLock()
	defer g.mu.RUnlock()
	result := make([]Triple, 0, len(keys))
	for _, k := range keys {
		result = append(result, g.triples[k])
	}
	return result
}

// Match returns the triples matching the given positions; nil matches anything
func (g *Graph) Match(s, p, o Term) []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var candidates []string
	if p != nil {
		candidates = g.byPredicate[p.String()]
	} else {
		candidates = make([]string, 0, len(g.triples))
		for k := range g.triples {
			candidates = append(candidates, k)
		}
	}

	var result []Triple
	for _, key := range candidates {
		t := g.triples[key]
		if s != nil && !Equal(s, t.S) {
			continue
		}
		if o != nil && !Equal(o, t.O) {
			continue
		}
		result = append(result, t)
	}
	return result
}

// WriteNTriples serializes the graph as N-Triples in deterministic order
func (g *Graph) WriteNTriples(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, t := range g.Triples() {
		if _, err := bw.WriteString(t.String()); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Dataset is the graph collection queries are evaluated against
type Dataset struct {
	Default *Graph
	Named   map[string]*Graph
}

// NewDataset creates a dataset with an empty default graph
func NewDataset() *Dataset {
	return &Dataset{Default: NewGraph(), Named: make(map[string]*Graph)}
}

// WithDefault returns a dataset that shares the named graphs of d but uses
// the union of d's default graph and extra as its default graph. d is unchanged.
func (d *Dataset) WithDefault(extra *Graph) *Dataset {
	union := NewGraph()
	if d != nil && d.Default != nil {
		union.Merge(d.Default)
	}
	union.Merge(extra)

	named := make(map[string]*Graph)
	if d != nil {
		for k, v := range d.Named {
			named[k] = v
		}
	}
	return &Dataset{Default: union, Named: named}
}
