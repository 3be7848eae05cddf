package phylogeny

import "github.com/google/uuid"

// EventMeta carries the context common to every callback: which step
// produced it and an optional correlation id a caller can use to line up
// events from the same AddGenome/DelGenome/Step call across logs. The
// correlation id is generated once per top-level call via uuid.New() and is
// the tree's only use of github.com/google/uuid — it never backs a GID or
// SID, which remain caller-supplied/opaque per spec.
type EventMeta struct {
	Step          uint
	CorrelationID uuid.UUID
}

// EventSink receives the tree's lifecycle notifications (spec §4.9,
// mirrored from the original core's Callbacks_t). Implementations must
// return promptly; the tree calls these synchronously from within
// AddGenome/DelGenome/Step, before the triggering call returns (spec §5).
//
// A nil EventSink is valid and means "no observer": the tree checks for nil
// before every dispatch and skips the call silently rather than panicking,
// resolving Open Question (i) in favour of the friendlier default.
type EventSink interface {
	// OnStepped fires once per Step call, reporting the set of species SIDs
	// currently referenced by the population passed to Step.
	OnStepped(meta EventMeta, aliveSet []SID)

	// OnNewSpecies fires when a genome could not be matched to any existing
	// species or subspecies and a new child species was created for it,
	// named sid with the given parent.
	OnNewSpecies(meta EventMeta, parent, sid SID)

	// OnGenomeEntersEnveloppe fires when gid is accepted as a representative
	// of sid, either because the enveloppe still had room or because it won
	// a contribution judgement over an existing representative.
	OnGenomeEntersEnveloppe(meta EventMeta, sid SID, gid GID)

	// OnGenomeLeavesEnveloppe fires when gid is evicted from sid's
	// representative set by a newer contributor.
	OnGenomeLeavesEnveloppe(meta EventMeta, sid SID, gid GID)

	// OnPrincipalContributorChanged fires when sid's principal contributor
	// changes from previous to current, triggering tree surgery that
	// detaches sid from previous's children and attaches it to current's.
	OnPrincipalContributorChanged(meta EventMeta, sid SID, previous, current SID)
}

// emit* helpers centralise the nil check so call sites in tree.go never
// have to remember it.

func (t *Tree[G]) emitStepped(meta EventMeta, aliveSet []SID) {
	if t.sink != nil {
		t.sink.OnStepped(meta, aliveSet)
	}
}

func (t *Tree[G]) emitNewSpecies(meta EventMeta, parent, sid SID) {
	if t.sink != nil {
		t.sink.OnNewSpecies(meta, parent, sid)
	}
}

func (t *Tree[G]) emitEntersEnveloppe(meta EventMeta, sid SID, gid GID) {
	if t.sink != nil {
		t.sink.OnGenomeEntersEnveloppe(meta, sid, gid)
	}
}

func (t *Tree[G]) emitLeavesEnveloppe(meta EventMeta, sid SID, gid GID) {
	if t.sink != nil {
		t.sink.OnGenomeLeavesEnveloppe(meta, sid, gid)
	}
}

func (t *Tree[G]) emitPrincipalContributorChanged(meta EventMeta, sid SID, previous, current SID) {
	if t.sink != nil {
		t.sink.OnPrincipalContributorChanged(meta, sid, previous, current)
	}
}

func (t *Tree[G]) newEventMeta() EventMeta {
	return EventMeta{Step: t.step, CorrelationID: uuid.New()}
}
