package phylogeny

import "fmt"

// idIndexEntry pairs a genome's owning species with a reference count: the
// same GID can be referenced by its own tree membership plus by each child
// genome that names it as a parent, so it must survive until every
// reference is released (spec §4.7, the original core's IdToSpeciesMap).
type idIndexEntry struct {
	sid      SID
	refcount uint
}

// idIndex is the GID -> SID reference-counted lookup shared by every
// species in a tree. It is the single source of truth for "is this genome
// still known to the tree, and if so which species does it belong to".
type idIndex struct {
	entries map[GID]*idIndexEntry
}

func newIDIndex() *idIndex {
	return &idIndex{entries: make(map[GID]*idIndexEntry)}
}

// insert registers gid as a fresh reference to sid with refcount 1. It is a
// PreconditionViolation (spec §7) for an already-registered gid to be
// re-inserted: a genome is inserted into the index exactly once, by its own
// add_genome call.
func (idx *idIndex) insert(gid GID, sid SID) error {
	if _, ok := idx.entries[gid]; ok {
		return &PreconditionError{Op: "insert", Err: fmt.Errorf("%w: %s already indexed", ErrDuplicateGenome, gid)}
	}
	idx.entries[gid] = &idIndexEntry{sid: sid, refcount: 1}
	return nil
}

// remove drops one reference to gid, erasing the entry entirely once its
// reference count reaches zero (spec §4.7). Returns a PreconditionError for
// a gid with no entry — del_genome for an unknown GID is a simulator bug,
// per spec §7's PreconditionViolation row.
func (idx *idIndex) remove(gid GID) (SID, error) {
	e, ok := idx.entries[gid]
	if !ok {
		return InvalidSID, &PreconditionError{Op: "remove", Err: fmt.Errorf("%w: %s", ErrUnknownGenome, gid)}
	}
	sid := e.sid
	e.refcount--
	if e.refcount == 0 {
		delete(idx.entries, gid)
	}
	return sid, nil
}

// removeGenome implements the index's `remove(genome)` overload (spec
// §4.7): it removes the genome's own GID, then for each parent slot the
// genome actually has populated, removes that parent GID's reference too.
// Returns the SID the genome's own entry belonged to.
func (idx *idIndex) removeGenome(g Genome) (SID, error) {
	sid, err := idx.remove(g.ID())
	if err != nil {
		return InvalidSID, err
	}
	for _, which := range [...]Parent{Mother, Father} {
		if !g.HasParent(which) {
			continue
		}
		if _, err := idx.remove(g.ParentID(which)); err != nil {
			return InvalidSID, err
		}
	}
	return sid, nil
}

// at returns the species a genome currently belongs to, with no side
// effect on its reference count.
func (idx *idIndex) at(gid GID) (SID, bool) {
	e, ok := idx.entries[gid]
	if !ok {
		return InvalidSID, false
	}
	return e.sid, true
}

// parentSID implements the index's `parent_sid(genome, which_parent)`
// operation (spec §4.7): if the genome lacks that parent slot, returns
// INVALID with no error. Otherwise looks up the parent GID, **increments**
// its reference count as a side effect of the lookup, and returns its SID.
// Returns a PreconditionError if the parent GID has no entry — the tree has
// no record of a genome the caller claims is a parent.
func (idx *idIndex) parentSID(g Genome, which Parent) (SID, error) {
	if !g.HasParent(which) {
		return InvalidSID, nil
	}
	parentGID := g.ParentID(which)
	e, ok := idx.entries[parentGID]
	if !ok {
		return InvalidSID, &PreconditionError{Op: "parent_sid", Err: fmt.Errorf("%w: %s", ErrMissingParent, parentGID)}
	}
	e.refcount++
	return e.sid, nil
}

// peekParentSID reports what parentSID would return for g's given parent
// slot, without incrementing the parent's reference count. Callers that must
// inspect a genome's lineage before deciding whether to commit to it (e.g.
// rejecting a cross-species hybrid) use this first, then call parentSID only
// once they know the refcount bump will actually be retained.
func (idx *idIndex) peekParentSID(g Genome, which Parent) (SID, error) {
	if !g.HasParent(which) {
		return InvalidSID, nil
	}
	parentGID := g.ParentID(which)
	e, ok := idx.entries[parentGID]
	if !ok {
		return InvalidSID, &PreconditionError{Op: "parent_sid", Err: fmt.Errorf("%w: %s", ErrMissingParent, parentGID)}
	}
	return e.sid, nil
}

// contains reports whether gid is currently tracked, regardless of
// reference count value.
func (idx *idIndex) contains(gid GID) bool {
	_, ok := idx.entries[gid]
	return ok
}

// refcount returns the current reference count for gid, for diagnostics
// and property tests (spec P2). ok is false if gid is not tracked.
func (idx *idIndex) refcount(gid GID) (uint, bool) {
	e, ok := idx.entries[gid]
	if !ok {
		return 0, false
	}
	return e.refcount, true
}

// len returns the number of distinct genomes currently tracked.
func (idx *idIndex) len() int {
	return len(idx.entries)
}
