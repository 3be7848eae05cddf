package phylogeny

import (
	"fmt"
	"io"
	"math"
	"sort"
)

// Tree is a PhylogeneticTree over a concrete genome type G: a single-rooted
// hierarchy of species nodes, the GID→SID index shared by every node, and
// the configuration and genome operations that drive classification.
// Mirrors PhylogenyTree / PhylogenyTree<GENOME,UDATA> (phylogenytree.hpp),
// generalized over G via the Ops[G] bundle in place of the original's
// compile-time genome-concept constraints.
type Tree[G Genome] struct {
	cfg  Config
	ops  Ops[G]
	sink EventSink

	nodes   map[SID]*node[G]
	root    SID
	nextSID SID

	index *idIndex

	step    uint
	hybrids uint
}

// NewTree constructs an empty tree. The root species is created lazily by
// the first AddGenome call (spec §4.8 step 1), not here.
func NewTree[G Genome](cfg Config, ops Ops[G], sink EventSink) *Tree[G] {
	if cfg.Verbose {
		debugChecks = true
	}
	return &Tree[G]{
		cfg:     cfg,
		ops:     ops,
		sink:    sink,
		nodes:   make(map[SID]*node[G]),
		root:    InvalidSID,
		nextSID: 0,
		index:   newIDIndex(),
	}
}

// Root returns the tree's root SID, or InvalidSID if no genome has been
// added yet.
func (t *Tree[G]) Root() SID { return t.root }

// CurrentStep returns the last step recorded via Step.
func (t *Tree[G]) CurrentStep() uint { return t.step }

// Hybrids returns the number of AddGenome calls so far whose two parents
// belonged to different species.
func (t *Tree[G]) Hybrids() uint { return t.hybrids }

// Width returns the total number of species nodes ever created. Species
// are never deleted (spec §5 "Memory discipline"), so this grows
// monotonically over the tree's lifetime.
func (t *Tree[G]) Width() int { return len(t.nodes) }

// NodeCount is an alias for Width kept for callers that prefer the more
// literal name.
func (t *Tree[G]) NodeCount() int { return len(t.nodes) }

// NodeAt exposes read access to a species' bookkeeping data, for callers
// building diagnostics or their own snapshot consumers.
func (t *Tree[G]) NodeAt(sid SID) (SpeciesData, bool) {
	n, ok := t.nodes[sid]
	if !ok {
		return SpeciesData{}, false
	}
	return n.data, true
}

// SpeciesOf returns the species a genome currently belongs to.
func (t *Tree[G]) SpeciesOf(gid GID) (SID, bool) {
	return t.index.at(gid)
}

// RefcountOf exposes a genome's current index reference count, for
// property tests asserting P2.
func (t *Tree[G]) RefcountOf(gid GID) (uint, bool) {
	return t.index.refcount(gid)
}

// MarkPending records that a genome known to belong to sid has been
// produced but not yet confirmed alive by the hosting simulation (spec
// §4.6's `pending` counter, explicitly owned by the caller, not the core).
func (t *Tree[G]) MarkPending(sid SID) error {
	n, ok := t.nodes[sid]
	if !ok {
		return &PreconditionError{Op: "MarkPending", Err: fmt.Errorf("%w: %s", ErrUnknownGenome, sid)}
	}
	n.incPending()
	return nil
}

// ClearPending undoes a prior MarkPending once the hosting simulation has
// resolved the genome's fate (born alive, or discarded).
func (t *Tree[G]) ClearPending(sid SID) error {
	n, ok := t.nodes[sid]
	if !ok {
		return &PreconditionError{Op: "ClearPending", Err: fmt.Errorf("%w: %s", ErrUnknownGenome, sid)}
	}
	n.decPending()
	return nil
}

// RecordDeath decrements sid's currently-alive counter, the hosting
// simulation's half of species extinction bookkeeping (spec §4.8's
// del_genome note: "Liveness-counter updates ... are managed by the hosting
// simulation, not the core").
func (t *Tree[G]) RecordDeath(sid SID) error {
	n, ok := t.nodes[sid]
	if !ok {
		return &PreconditionError{Op: "RecordDeath", Err: fmt.Errorf("%w: %s", ErrUnknownGenome, sid)}
	}
	n.recordRemoval(t.step)
	return nil
}

// makeNode allocates a fresh species node under parent and registers it.
func (t *Tree[G]) makeNode(parent SID) SID {
	sid := t.nextSID
	t.nextSID++
	t.nodes[sid] = newNode[G](sid, parent, t.cfg.EnveloppeSize, t.step)
	return sid
}

// eligibleContributor is the predicate passed to elligibility_recheck: a
// species is eligible to remain a contributor so long as it still exists
// and is not extinct.
func (t *Tree[G]) eligibleContributor(sid SID) bool {
	n, ok := t.nodes[sid]
	return ok && !n.extinct()
}

// scoreCandidate computes a species-matching score for g against n's
// current representative set (spec §4.3), leaving a fully populated
// DCCache of the per-representative (distance, compatibility) pairs for
// reuse by insertInto/the judge.
func (t *Tree[G]) scoreCandidate(g G, n *node[G]) (float64, *dcCache) {
	cache := &dcCache{}
	cache.reserve(n.env.size())

	matable := 0
	sumCompat := 0.0
	for _, r := range n.env.reps {
		d := t.ops.Distance(g, r.genome)
		c := math.Min(t.ops.Compatibility(g, d), t.ops.Compatibility(r.genome, d))
		cache.push(d, c)
		if c >= t.cfg.CompatibilityThreshold {
			matable++
		}
		sumCompat += c
	}

	if t.cfg.FullContinuous {
		mean := 0.0
		if n.env.size() > 0 {
			mean = sumCompat / float64(n.env.size())
		}
		return mean - t.cfg.AvgCompatibilityThreshold, cache
	}
	return float64(matable) - t.cfg.SimilarityThreshold*float64(t.cfg.EnveloppeSize), cache
}

// reorderContribution stably partitions contribution so every entry equal
// to best comes first, preserving relative order within each group (spec
// §4.8 step 5).
func reorderContribution(contribution []SID, best SID) []SID {
	out := make([]SID, 0, len(contribution))
	for _, sid := range contribution {
		if sid == best {
			out = append(out, sid)
		}
	}
	for _, sid := range contribution {
		if sid != best {
			out = append(out, sid)
		}
	}
	return out
}

// descendOneLevel implements spec §4.8 step 7: scans the candidates'
// children breadth-first (index i across every candidate before i+1) and
// returns the first child species to score strictly positive against g.
func (t *Tree[G]) descendOneLevel(g G, candidates []SID) (SID, *dcCache, bool) {
	childLists := make([][]SID, len(candidates))
	maxLen := 0
	for i, c := range candidates {
		if n, ok := t.nodes[c]; ok {
			childLists[i] = n.children
			if len(n.children) > maxLen {
				maxLen = len(n.children)
			}
		}
	}
	for i := 0; i < maxLen; i++ {
		for _, children := range childLists {
			if i >= len(children) {
				continue
			}
			childSID := children[i]
			childNode, ok := t.nodes[childSID]
			if !ok {
				continue
			}
			score, cache := t.scoreCandidate(g, childNode)
			if score > 0 {
				return childSID, cache, true
			}
		}
	}
	return InvalidSID, nil, false
}

// insertInto implements spec §4.8's insert_into(g, species, DCCache): if
// the representative set has room, g is appended outright; otherwise the
// configured judge rule decides whether g should replace an existing
// representative. cache may be nil only when n's enveloppe is presently
// empty (the very first genome a species ever receives).
func (t *Tree[G]) insertInto(g G, n *node[G], cache *dcCache, userData any, meta EventMeta) error {
	k := n.env.size()

	if k < n.env.capacity {
		var distances []float64
		if cache != nil {
			distances = cache.distances
		}
		n.env.append(g, userData, distances)
		t.emitEntersEnveloppe(meta, n.sid, g.ID())
	} else {
		contrib, err := computeContribution(t.cfg.JudgeRule, n.env.distances, cache.distances, k)
		if err != nil {
			return err
		}
		if contrib.better {
			oldGID := n.env.reps[contrib.than].genome.ID()
			t.emitLeavesEnveloppe(meta, n.sid, oldGID)
			n.env.replace(contrib.than, g, userData, cache.distances)
			t.emitEntersEnveloppe(meta, n.sid, g.ID())
		}
	}

	n.recordAddition(t.step)
	if debugChecks {
		if err := n.checkInvariants(); err != nil {
			return err
		}
	}
	return nil
}

// updateContributions implements spec §4.8's update_contributions(species,
// contribution): folds contribution into n's contributor list, and if the
// principal contributor changed, performs the tree surgery that detaches n
// from its old parent and reattaches it to the new one.
func (t *Tree[G]) updateContributions(n *node[G], contribution []SID, meta EventMeta) error {
	lookup := func(sid SID) *node[G] { return t.nodes[sid] }

	newParent, changed := n.update(contribution, lookup)
	if !changed {
		return nil
	}
	// The root never gets a parent: its contributor tally is still recorded
	// above for bookkeeping/snapshot fidelity, but a hybrid whose two parent
	// species are the root and some other branch must not reparent the root
	// out from under the tree, which would leave the tree's declared root
	// pointing at a node that itself now has a parent.
	if n.sid == t.root {
		return nil
	}

	oldParent := n.parent
	if old, ok := t.nodes[oldParent]; ok {
		old.delChild(n.sid)
	}
	n.updateParent(newParent)
	if np, ok := t.nodes[newParent]; ok {
		np.addChild(n.sid)
	} else if newParent != InvalidSID {
		return &InvariantError{
			Invariant: "parent-exists",
			Detail:    fmt.Sprintf("species %s reparented to missing node %s", n.sid, newParent),
		}
	}

	if debugChecks {
		if err := n.checkParentAttachment(func(sid SID) []SID {
			if p, ok := t.nodes[sid]; ok {
				return p.children
			}
			return nil
		}); err != nil {
			return err
		}
	}

	for sid, other := range t.nodes {
		if sid == n.sid {
			continue
		}
		if other.contribs.elligibilityRecheck(t.eligibleContributor) && debugChecks {
			return &InvariantError{
				Invariant: "no-cascading-reparent",
				Detail:    fmt.Sprintf("species %s's principal changed during the recheck triggered by %s", sid, n.sid),
			}
		}
	}

	t.emitPrincipalContributorChanged(meta, n.sid, oldParent, newParent)
	return nil
}

// updateSpeciesContents implements spec §4.8's
// update_species_contents(g, species, dccache, contribution): runs
// insertInto, then (if contribution is non-empty) updateContributions,
// then registers g in the GID→SID index.
func (t *Tree[G]) updateSpeciesContents(g G, sid SID, cache *dcCache, contribution []SID, userData any, meta EventMeta) (SID, error) {
	n, ok := t.nodes[sid]
	if !ok {
		return InvalidSID, &InvariantError{Invariant: "node-exists", Detail: fmt.Sprintf("species %s not found", sid)}
	}
	if err := t.insertInto(g, n, cache, userData, meta); err != nil {
		return InvalidSID, err
	}
	if len(contribution) > 0 {
		if err := t.updateContributions(n, contribution, meta); err != nil {
			return InvalidSID, err
		}
	}
	if err := t.index.insert(g.ID(), sid); err != nil {
		return InvalidSID, err
	}
	return sid, nil
}

// newChildSpecies implements spec §4.8 step 8: creates a new species whose
// parent is already fixed at creation (the best-scoring top-level
// candidate), seeds its contributor list, inserts g as its founding
// representative, and emits on_new_species after the founding
// enters-enveloppe event (spec §5 ordering).
func (t *Tree[G]) newChildSpecies(g G, parent SID, contribution []SID, userData any, meta EventMeta) (SID, error) {
	sid := t.makeNode(parent)
	child := t.nodes[sid]
	if parentNode, ok := t.nodes[parent]; ok {
		parentNode.addChild(sid)
	}
	if len(contribution) > 0 {
		child.contribs.update(contribution)
	}
	if err := t.insertInto(g, child, nil, userData, meta); err != nil {
		return InvalidSID, err
	}
	if err := t.index.insert(g.ID(), sid); err != nil {
		return InvalidSID, err
	}
	t.emitNewSpecies(meta, parent, sid)
	return sid, nil
}

// AddGenome classifies g into the tree, following spec §4.8's add_genome
// algorithm, and returns the SID of the species it ended up in.
func (t *Tree[G]) AddGenome(g G, userData any) (SID, error) {
	if t.index.contains(g.ID()) {
		return InvalidSID, &PreconditionError{Op: "AddGenome", Err: fmt.Errorf("%w: %s", ErrDuplicateGenome, g.ID())}
	}

	meta := t.newEventMeta()

	if t.root == InvalidSID {
		sid := t.makeNode(InvalidSID)
		t.root = sid
		return t.updateSpeciesContents(g, sid, nil, nil, userData, meta)
	}

	// Determine lineage with peekParentSID first, which has no side effect:
	// parentSID's refcount increment must not happen until we know the
	// genome will actually be committed, since a hybrid rejected below is
	// never inserted into the index and so would have no way to ever
	// release an increment taken on its behalf.
	mSID, err := t.index.peekParentSID(g, Mother)
	if err != nil {
		return InvalidSID, err
	}
	fSID, err := t.index.peekParentSID(g, Father)
	if err != nil {
		return InvalidSID, err
	}

	if mSID != InvalidSID && fSID != InvalidSID && mSID != fSID {
		t.hybrids++
		if !t.cfg.IgnoreHybrids {
			return InvalidSID, fmt.Errorf("%w: mother in %s, father in %s", ErrHybridRejected, mSID, fSID)
		}
	}

	// The genome is being committed: now take the refcount increments
	// parent_sid is specified to have as a side effect (spec §4.7).
	if mSID != InvalidSID {
		if _, err := t.index.parentSID(g, Mother); err != nil {
			return InvalidSID, err
		}
	}
	if fSID != InvalidSID {
		if _, err := t.index.parentSID(g, Father); err != nil {
			return InvalidSID, err
		}
	}

	var candidates, contribution []SID
	switch {
	case mSID == InvalidSID && fSID == InvalidSID:
		candidates = []SID{t.root}
	case fSID == InvalidSID:
		candidates = []SID{mSID}
		contribution = []SID{mSID}
	case mSID == InvalidSID:
		candidates = []SID{fSID}
		contribution = []SID{fSID}
	case mSID == fSID:
		candidates = []SID{mSID}
		contribution = []SID{mSID, mSID}
	default:
		candidates = []SID{mSID, fSID}
		contribution = []SID{mSID, fSID}
	}

	type scoredCandidate struct {
		sid   SID
		score float64
		cache *dcCache
	}
	var best *scoredCandidate
	for _, c := range candidates {
		n, ok := t.nodes[c]
		if !ok {
			return InvalidSID, &InvariantError{Invariant: "candidate-exists", Detail: fmt.Sprintf("candidate species %s not found", c)}
		}
		score, cache := t.scoreCandidate(g, n)
		if best == nil || score > best.score {
			best = &scoredCandidate{sid: c, score: score, cache: cache}
		}
	}

	if len(contribution) > 1 {
		contribution = reorderContribution(contribution, best.sid)
	}

	if best.score > 0 {
		return t.updateSpeciesContents(g, best.sid, best.cache, contribution, userData, meta)
	}

	if childSID, cache, found := t.descendOneLevel(g, candidates); found {
		return t.updateSpeciesContents(g, childSID, cache, contribution, userData, meta)
	}

	return t.newChildSpecies(g, best.sid, contribution, userData, meta)
}

// DelGenome implements spec §4.8's del_genome(g): releases g's own GID and
// (cascading) each present parent's GID from the index, records the step
// on the owning species, and returns that species' SID. Liveness-counter
// updates are the hosting simulation's responsibility; call RecordDeath
// separately if this genome's death should decrement its species' alive
// count.
func (t *Tree[G]) DelGenome(g G) (SID, error) {
	sid, err := t.index.removeGenome(g)
	if err != nil {
		return InvalidSID, err
	}
	if n, ok := t.nodes[sid]; ok {
		n.data.LastAppearance = t.step
	}
	return sid, nil
}

// Step implements spec §4.8's step(t, population_iter, gid_of): collects
// the set of distinct SIDs currently referenced by population (already
// resolved to GIDs by the caller), stamps last_appearance on each, advances
// the clock, and emits on_stepped.
func (t *Tree[G]) Step(step uint, population []GID) error {
	seen := make(map[SID]struct{})
	for _, gid := range population {
		if sid, ok := t.index.at(gid); ok {
			seen[sid] = struct{}{}
		}
	}
	alive := make([]SID, 0, len(seen))
	for sid := range seen {
		alive = append(alive, sid)
		if n, ok := t.nodes[sid]; ok {
			n.data.LastAppearance = step
		}
	}
	sort.Slice(alive, func(i, j int) bool { return alive[i] < alive[j] })

	t.step = step
	t.emitStepped(t.newEventMeta(), alive)
	return nil
}

// StepPopulation is a convenience wrapper around Tree.Step for callers
// whose population is a slice of some richer element type P rather than
// bare GIDs; gidOf extracts the GID that the tree's index should be
// consulted on for each element. Declared as a free function rather than a
// method because Go methods cannot introduce additional type parameters
// beyond the receiver's.
func StepPopulation[G Genome, P any](t *Tree[G], step uint, population []P, gidOf func(P) GID) error {
	gids := make([]GID, len(population))
	for i, p := range population {
		gids[i] = gidOf(p)
	}
	return t.Step(step, gids)
}

// sortedSIDs returns every species SID in increasing order, for
// deterministic snapshot and DOT output.
func (t *Tree[G]) sortedSIDs() []SID {
	out := make([]SID, 0, len(t.nodes))
	for sid := range t.nodes {
		out = append(out, sid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WriteDOT renders the full tree as a Graphviz digraph, one node
// declaration and parent edge per species (SPEC_FULL §3's visualization
// support, mirrored from the teacher's network-topology dumping idiom).
func (t *Tree[G]) WriteDOT(w io.Writer) error {
	if _, err := io.WriteString(w, "digraph Phylogeny {\n"); err != nil {
		return err
	}
	for _, sid := range t.sortedSIDs() {
		if err := t.nodes[sid].writeDOT(w); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "}\n")
	return err
}
