package distribution

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/signalsfoundry/recovery-simulator/kb"
	"github.com/signalsfoundry/recovery-simulator/model"
)

// PathSet lists candidate locality sequences from one locality to another.
// Every sequence starts at From.
type PathSet struct {
	From       int
	To         int
	Candidates [][]int
}

// Path is the best candidate between two localities. Index is -1 when no
// candidate exists.
type Path struct {
	Capacity float64
	Index    int
	Links    []int
}

type localityPair struct{ from, to int }

// PotentialPathSets is a transfer service whose capacity between two
// localities is the largest bottleneck over pre-enumerated candidate paths.
// A path's bottleneck is the smallest current supply among its links.
type PotentialPathSets struct {
	resource string
	store    *kb.ComponentStore
	paths    map[localityPair][][]int
	opts     options
}

// ParsePathSetKey parses keys of the form "from A to B".
func ParsePathSetKey(key string) (from, to int, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(key), "from ")
	if !ok {
		return 0, 0, fmt.Errorf("%w: key %q", ErrBadPathSet, key)
	}
	a, b, ok := strings.Cut(rest, " to ")
	if !ok {
		return 0, 0, fmt.Errorf("%w: key %q", ErrBadPathSet, key)
	}
	if from, err = strconv.Atoi(strings.TrimSpace(a)); err != nil {
		return 0, 0, fmt.Errorf("%w: key %q: %v", ErrBadPathSet, key, err)
	}
	if to, err = strconv.Atoi(strings.TrimSpace(b)); err != nil {
		return 0, 0, fmt.Errorf("%w: key %q: %v", ErrBadPathSet, key, err)
	}
	return from, to, nil
}

// NewPotentialPathSets resolves every candidate locality sequence into the
// link components that carry the resource. A hop without a link component
// is a configuration error.
func NewPotentialPathSets(resource string, store *kb.ComponentStore, sets []PathSet, opts ...Option) (*PotentialPathSets, error) {
	p := &PotentialPathSets{
		resource: resource,
		store:    store,
		paths:    make(map[localityPair][][]int, len(sets)),
		opts:     applyOptions(opts),
	}
	for _, set := range sets {
		key := localityPair{set.From, set.To}
		for _, localities := range set.Candidates {
			if len(localities) < 2 || localities[0] != set.From {
				return nil, fmt.Errorf("%w: candidate %v for from %d to %d", ErrBadPathSet, localities, set.From, set.To)
			}
			links, err := p.resolve(set.From, set.To, localities)
			if err != nil {
				return nil, err
			}
			p.paths[key] = append(p.paths[key], links)
		}
	}
	return p, nil
}

func (p *PotentialPathSets) resolve(from, to int, localities []int) ([]int, error) {
	var links []int
	current := from
	for _, next := range localities[1:] {
		link := p.findLink(current, next)
		if link < 0 {
			return nil, fmt.Errorf("%w: %d to %d for resource %q", ErrMissingLink, current, next, p.resource)
		}
		links = append(links, link)
		if next == to {
			break
		}
		current = next
	}
	return links, nil
}

func (p *PotentialPathSets) findLink(start, next int) int {
	for i, c := range p.store.All() {
		loc := c.Locality()
		if loc.Start == start && loc.End == next && c.HasResourceSupply(p.resource) {
			return i
		}
	}
	return -1
}

func (p *PotentialPathSets) Resource() string { return p.resource }

// Distribute is a no-op: link supply is refreshed when components update.
func (p *PotentialPathSets) Distribute(context.Context) error { return nil }

// OptimalPath returns the candidate with the largest bottleneck. An unknown
// locality pair has zero capacity.
func (p *PotentialPathSets) OptimalPath(start, end int) Path {
	candidates := p.paths[localityPair{start, end}]
	best := Path{Capacity: math.Inf(-1), Index: -1}
	for i, links := range candidates {
		if c := p.bottleneck(links); c > best.Capacity {
			best = Path{Capacity: c, Index: i, Links: append([]int(nil), links...)}
		}
	}
	if best.Index < 0 {
		best.Capacity = 0
	}
	return best
}

func (p *PotentialPathSets) bottleneck(links []int) float64 {
	capacity := math.Inf(1)
	for _, i := range links {
		var c Component = p.store.At(i)
		capacity = math.Min(capacity, c.CurrentResourceAmount(model.Supply, model.SupplyTable, p.resource))
	}
	return capacity
}

// Totals are not defined for a transfer service and are reported as zero.
func (p *PotentialPathSets) TotalSupply(model.Scope) float64      { return 0 }
func (p *PotentialPathSets) TotalDemand(model.Scope) float64      { return 0 }
func (p *PotentialPathSets) TotalConsumption(model.Scope) float64 { return 0 }
