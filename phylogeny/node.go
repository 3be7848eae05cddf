package phylogeny

import (
	"fmt"
	"io"
)

// SpeciesData is the small set of bookkeeping counters kept per species,
// independent of genome content: when it first and last appeared (in
// simulation steps) and how many genomes it has ever counted as members.
// Mirrors speciesdata.hpp, whose JSON form is the 3-element array
// [firstAppearance, lastAppearance, count] reproduced by the snapshot codec
// (spec §6).
type SpeciesData struct {
	FirstAppearance uint
	LastAppearance  uint
	Count           uint
}

// node is a single species in the tree: its representative set, its
// contributor ledger, its position in the tree, and its lifetime counters.
// Mirrors Node<GENOME,UDATA> (node.hpp), generalized over the caller's
// genome type and carrying opaque per-species user data instead of the
// template UDATA parameter.
type node[G Genome] struct {
	sid      SID
	parent   SID
	children []SID

	env      *enveloppe[G]
	contribs *contributors

	data SpeciesData

	aliveCount   uint
	pendingCount uint

	userData any
}

func newNode[G Genome](sid, parent SID, enveloppeSize int, step uint) *node[G] {
	return &node[G]{
		sid:      sid,
		parent:   parent,
		env:      newEnveloppe[G](enveloppeSize),
		contribs: newContributors(sid),
		data: SpeciesData{
			FirstAppearance: step,
			LastAppearance:  step,
		},
	}
}

// addChild records sid as a direct descendant of this node.
func (n *node[G]) addChild(sid SID) {
	for _, c := range n.children {
		if c == sid {
			return
		}
	}
	n.children = append(n.children, sid)
}

// delChild removes sid from this node's direct descendants, e.g. when it is
// reparented elsewhere during tree surgery (spec §4.7).
func (n *node[G]) delChild(sid SID) {
	for i, c := range n.children {
		if c == sid {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return
		}
	}
}

// update passes contribution (a multiset of contributing species SIDs) to
// this node's contributor list, re-electing its principal contributor (spec
// §4.6). If the principal SID changed, it resolves the new parent through
// lookup and returns it; changed is false when the principal did not change,
// in which case newParent is meaningless.
func (n *node[G]) update(contribution []SID, lookup func(SID) *node[G]) (newParent SID, changed bool) {
	if len(contribution) == 0 {
		return InvalidSID, false
	}
	if !n.contribs.update(contribution) {
		return InvalidSID, false
	}
	principal, ok := n.contribs.principal()
	if !ok {
		return InvalidSID, false
	}
	if lookup != nil {
		if p := lookup(principal); p != nil {
			return p.sid, true
		}
	}
	return principal, true
}

// updateParent rewrites this node's parent pointer, the second half of the
// tree-surgery Tree.updateContributions performs alongside detaching from the
// old parent's children list and attaching to the new one.
func (n *node[G]) updateParent(parent SID) { n.parent = parent }

// recordAddition updates the lifetime counters for a genome joining this
// species at the given step.
func (n *node[G]) recordAddition(step uint) {
	if n.data.Count == 0 {
		n.data.FirstAppearance = step
	}
	n.data.LastAppearance = step
	n.data.Count++
	n.aliveCount++
}

// recordRemoval reflects a member genome leaving the species.
func (n *node[G]) recordRemoval(step uint) {
	if n.aliveCount > 0 {
		n.aliveCount--
	}
	n.data.LastAppearance = step
}

// incPending/decPending track genomes that are known to belong to this
// species but have not yet been counted alive or dead by the hosting
// simulation (spec §4.6's `pending`).
func (n *node[G]) incPending() { n.pendingCount++ }
func (n *node[G]) decPending() {
	if n.pendingCount > 0 {
		n.pendingCount--
	}
}

// extinct reports whether this species currently has zero living members
// and zero pending ones (spec §4.6). A species is never deleted once
// created: extinction only silences it from contention for new
// arrivals' reparenting, it never removes the node.
func (n *node[G]) extinct() bool {
	return n.aliveCount == 0 && n.pendingCount == 0
}

// checkInvariants runs the debug-only consistency assertions mirrored from
// the original core's checkMC()/assertEqual(): the enveloppe's distance map
// must hold exactly one entry per unordered pair of representatives (P1).
func (n *node[G]) checkInvariants() error {
	k := n.env.size()
	want := k * (k - 1) / 2
	if got := len(n.env.distances); got != want {
		return &InvariantError{
			Invariant: "P1",
			Detail:    fmt.Sprintf("species %s has %d representatives but %d distance entries (want %d)", n.sid, k, got, want),
		}
	}
	return nil
}

// checkParentAttachment runs the debug-only P3 assertion: a non-root species
// must never be its own parent, and must appear in its parent's children
// list. childrenOf resolves a SID to that node's current children slice.
func (n *node[G]) checkParentAttachment(childrenOf func(SID) []SID) error {
	if n.parent == n.sid {
		return &InvariantError{Invariant: "P3", Detail: fmt.Sprintf("species %s is its own parent", n.sid)}
	}
	if n.parent == InvalidSID {
		return nil
	}
	for _, c := range childrenOf(n.parent) {
		if c == n.sid {
			return nil
		}
	}
	return &InvariantError{
		Invariant: "P3",
		Detail:    fmt.Sprintf("species %s is not present in parent %s's children list", n.sid, n.parent),
	}
}

// writeDOT emits this node's Graphviz declaration and parent edge, used by
// Tree.WriteDOT (SPEC_FULL §3).
func (n *node[G]) writeDOT(w io.Writer) error {
	_, err := fmt.Fprintf(w, "  %q [label=%q];\n", n.sid.String(), fmt.Sprintf("%s\\n%d members", n.sid, n.data.Count))
	if err != nil {
		return err
	}
	if n.parent != InvalidSID {
		if _, err := fmt.Fprintf(w, "  %q -> %q;\n", n.parent.String(), n.sid.String()); err != nil {
			return err
		}
	}
	return nil
}
