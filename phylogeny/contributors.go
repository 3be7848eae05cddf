package phylogeny

import "sort"

// nodeContributor is one ancestor species' tally of how many of a species'
// members trace back to it, mirroring the original core's NodeContributor
// (speciescontributors.h). Mirrors spec's NodeContributor array shape
// `[sid, count]` for snapshotting.
type nodeContributor struct {
	sid   SID
	count uint
}

// contributors tracks, for a single species, which ancestor species
// contributed members to it and how many, electing a principal contributor
// by highest count excluding the owning species itself (spec §4.5). Ties
// are broken by insertion order: the contributor that first reached a given
// count keeps precedence, exactly as a stable sort over the original's
// std::stable_sort by decreasing count.
type contributors struct {
	owner SID
	list  []nodeContributor
}

func newContributors(owner SID) *contributors {
	return &contributors{owner: owner}
}

// principal returns the SID of the highest-count entry whose SID is not the
// owning species itself. ok is false if no such entry exists (a species
// with no recorded lineage but itself, e.g. the root, or one whose only
// contributions are self-contributions).
func (c *contributors) principal() (sid SID, ok bool) {
	for _, nc := range c.list {
		if nc.sid != c.owner {
			return nc.sid, true
		}
	}
	return InvalidSID, false
}

func (c *contributors) indexOf(sid SID) int {
	for i, nc := range c.list {
		if nc.sid == sid {
			return i
		}
	}
	return -1
}

func (c *contributors) resort() {
	sort.SliceStable(c.list, func(i, j int) bool {
		return c.list[i].count > c.list[j].count
	})
}

// update records a multiset of contributing SIDs (a genome's parent
// species, one entry per parent, INVALID dropped): drops INVALIDs, adds the
// matching multiplicity to every already-known contributor, appends a fresh
// entry for every unknown one, then re-sorts in decreasing count (spec
// §4.5). It reports whether the principal contributor changed as a result,
// the tree's trigger to consider reparenting the species node (§4.7).
func (c *contributors) update(multiset []SID) bool {
	before, hadBefore := c.principal()

	for _, sid := range multiset {
		if sid == InvalidSID {
			continue
		}
		if i := c.indexOf(sid); i >= 0 {
			c.list[i].count++
		} else {
			c.list = append(c.list, nodeContributor{sid: sid, count: 1})
		}
	}
	c.resort()

	after, hadAfter := c.principal()
	return hadBefore != hadAfter || before != after
}

// elligibilityRecheck drops contributors the supplied predicate no longer
// considers eligible (e.g. their species has become detached), then
// re-elects the principal contributor. Per spec §9 Open Question (ii), the
// pass is claimed to be inert in practice but is retained here as a real,
// independently callable check rather than assumed a no-op. Returns whether
// the principal contributor changed.
func (c *contributors) elligibilityRecheck(eligible func(SID) bool) bool {
	before, hadBefore := c.principal()

	if eligible != nil {
		kept := c.list[:0]
		for _, nc := range c.list {
			if eligible(nc.sid) {
				kept = append(kept, nc)
			}
		}
		c.list = kept
	}
	c.resort()

	after, hadAfter := c.principal()
	return hadBefore != hadAfter || before != after
}

// entries returns a defensive copy of the current contributor list, ordered
// by decreasing count, for snapshotting and diagnostics.
func (c *contributors) entries() []nodeContributor {
	out := make([]nodeContributor, len(c.list))
	copy(out, c.list)
	return out
}
