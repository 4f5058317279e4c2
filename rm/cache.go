package rm

import (
	"fmt"

	"github.com/zeu5/crm/types"
	"golang.org/x/exp/slices"
)

const maxPropositions = 64

type cacheKey struct {
	state int
	mask  uint64
}

// transitionCache memoizes NextState by (state, proposition bitmask). It
// lives as long as the machine and is never persisted.
type transitionCache struct {
	names   []string
	entries map[cacheKey]int
	hits    int
	misses  int
}

func newTransitionCache(names []string) (*transitionCache, error) {
	if len(names) > maxPropositions {
		return nil, fmt.Errorf("%d propositions referenced, at most %d supported", len(names), maxPropositions)
	}
	return &transitionCache{
		names:   names,
		entries: make(map[cacheKey]int),
	}, nil
}

// mask sets bit i when the i-th sorted relevant proposition is true.
// Names that no guard references are ignored.
func (c *transitionCache) mask(props types.Props) uint64 {
	var m uint64
	for i, name := range c.names {
		if props[name] {
			m |= 1 << uint(i)
		}
	}
	return m
}

func (c *transitionCache) get(state int, mask uint64) (int, bool) {
	to, ok := c.entries[cacheKey{state: state, mask: mask}]
	if ok {
		c.hits += 1
	} else {
		c.misses += 1
	}
	return to, ok
}

func (c *transitionCache) put(state int, mask uint64, to int) {
	c.entries[cacheKey{state: state, mask: mask}] = to
}

func (c *transitionCache) propositions() []string {
	return slices.Clone(c.names)
}

// CacheStats reports transition cache hits and misses since construction
func (rm *RewardMachine) CacheStats() (hits, misses int) {
	return rm.cache.hits, rm.cache.misses
}
