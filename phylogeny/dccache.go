package phylogeny

// dcCache is a transient, per-call scratch holder of the distance and
// compatibility values computed while scoring a genome against a species'
// representatives. It is never shared or retained across addGenome calls,
// mirroring _details::DCCache in the original C++ core.
type dcCache struct {
	distances       []float64
	compatibilities []float64
}

// clear empties the cache without releasing its backing storage.
func (c *dcCache) clear() {
	c.distances = c.distances[:0]
	c.compatibilities = c.compatibilities[:0]
}

// reserve ensures capacity for n further push calls.
func (c *dcCache) reserve(n int) {
	if cap(c.distances) < n {
		grown := make([]float64, len(c.distances), n)
		copy(grown, c.distances)
		c.distances = grown
	}
	if cap(c.compatibilities) < n {
		grown := make([]float64, len(c.compatibilities), n)
		copy(grown, c.compatibilities)
		c.compatibilities = grown
	}
}

// push appends a (distance, compatibility) pair.
func (c *dcCache) push(d, compat float64) {
	c.distances = append(c.distances, d)
	c.compatibilities = append(c.compatibilities, compat)
}

// size returns the number of pairs currently held.
func (c *dcCache) size() int {
	return len(c.distances)
}

// clone returns an independent copy of the cache. AddGenome does not call
// it: scoreCandidate allocates a fresh cache for every candidate it scores.
func (c *dcCache) clone() dcCache {
	out := dcCache{
		distances:       make([]float64, len(c.distances)),
		compatibilities: make([]float64, len(c.compatibilities)),
	}
	copy(out.distances, c.distances)
	copy(out.compatibilities, c.compatibilities)
	return out
}
