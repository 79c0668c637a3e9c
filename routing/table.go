package routing

import (
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rgwgateway/rgw/pathmatch"
)

type group struct {
	prefix string
	routes []*Route
}

// immutable after publishing
type snapshot struct {
	routes   []*Route
	byId     map[string]int
	literals map[string][]*Route
	groups   []*group
}

func newSnapshot(routes []*Route, prefixOrder []string) *snapshot {
	s := &snapshot{
		routes:   routes,
		byId:     make(map[string]int, len(routes)),
		literals: make(map[string][]*Route),
	}

	groups := make(map[string]*group)
	for _, p := range prefixOrder {
		g := &group{prefix: p}
		groups[p] = g
		s.groups = append(s.groups, g)
	}

	for i, r := range routes {
		s.byId[r.Id] = i
		if pathmatch.IsLiteral(r.Path) {
			s.literals[r.Path] = append(s.literals[r.Path], r)
			continue
		}

		p := pathmatch.ConstantPrefix(r.Path)
		g, ok := groups[p]
		if !ok {
			g = &group{prefix: p}
			groups[p] = g
			s.groups = append(s.groups, g)
		}

		g.routes = append(g.routes, r)
	}

	return s
}

func (s *snapshot) prefixes() []string {
	p := make([]string, len(s.groups))
	for i, g := range s.groups {
		p[i] = g.prefix
	}

	return p
}

var emptySnapshot = newSnapshot(nil, nil)

// Table holds the current routes. Lookups are lock free, changes are
// serialized and replace the whole snapshot of the table. The zero value
// is an empty table.
type Table struct {
	mu      sync.Mutex
	current atomic.Pointer[snapshot]
}

// NewTable creates a table containing the given routes.
func NewTable(routes ...*Route) *Table {
	t := &Table{}
	t.Replace(routes)
	return t
}

func (t *Table) load() *snapshot {
	if s := t.current.Load(); s != nil {
		return s
	}

	return emptySnapshot
}

// only called while locked
func (t *Table) publish(routes []*Route) {
	t.current.Store(newSnapshot(routes, t.load().prefixes()))
}

// normalizePath doesn't write the path when it's normalized already, as
// routes kept across updates may be read concurrently.
func normalizePath(r *Route) {
	if p := pathmatch.Normalize(r.Path); p != r.Path {
		r.Path = p
	}
}

// Add inserts a route at the end of the table, or, when a route with the
// same id exists, replaces it at its current position. The path of the
// route is normalized.
func (t *Table) Add(r *Route) {
	normalizePath(r)

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.load()
	routes := slices.Clone(s.routes)
	if i, ok := s.byId[r.Id]; ok {
		routes[i] = r
	} else {
		routes = append(routes, r)
	}

	t.publish(routes)
}

// Remove deletes a route. It returns false when the route was not found.
func (t *Table) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.load()
	i, ok := s.byId[id]
	if !ok {
		return false
	}

	t.publish(slices.Delete(slices.Clone(s.routes), i, i+1))
	return true
}

// Replace swaps the content of the table. When routes contains the same
// id more than once, the last one is used, at the position of the first
// one.
func (t *Table) Replace(routes []*Route) {
	var (
		deduped []*Route
		index   = make(map[string]int)
	)

	for _, r := range routes {
		normalizePath(r)
		if i, ok := index[r.Id]; ok {
			deduped[i] = r
			continue
		}

		index[r.Id] = len(deduped)
		deduped = append(deduped, r)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.Store(newSnapshot(deduped, nil))
}

// Get returns a route by id.
func (t *Table) Get(id string) (*Route, bool) {
	s := t.load()
	i, ok := s.byId[id]
	if !ok {
		return nil, false
	}

	return s.routes[i], true
}

// Len returns the number of routes in the table.
func (t *Table) Len() int {
	return len(t.load().routes)
}

// All returns the routes in insertion order.
func (t *Table) All() []*Route {
	return slices.Clone(t.load().routes)
}

// Match returns the routes matching a request path, in lookup order,
// together with the path parameters bound by each of them. The sequence
// iterates over the table as it was when Match was called.
func (t *Table) Match(path string) iter.Seq2[*Route, map[string]string] {
	s := t.load()
	path = pathmatch.Normalize(path)
	return func(yield func(*Route, map[string]string) bool) {
		for _, r := range s.literals[path] {
			if !yield(r, nil) {
				return
			}
		}

		for _, g := range s.groups {
			if !pathmatch.HasPrefix(path, g.prefix) {
				continue
			}

			for _, r := range g.routes {
				params, ok := r.Match(path)
				if !ok {
					continue
				}

				if !yield(r, params) {
					return
				}
			}
		}
	}
}

// Routes returns the routes matching a request path, in lookup order.
func (t *Table) Routes(path string) iter.Seq[*Route] {
	m := t.Match(path)
	return func(yield func(*Route) bool) {
		for r := range m {
			if !yield(r) {
				return
			}
		}
	}
}
