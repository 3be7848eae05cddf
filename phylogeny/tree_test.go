package phylogeny

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// testGenome is a minimal one-dimensional Genome used throughout this
// package's internal tests: distance is |trait difference|, compatibility is
// a Gaussian bump around zero distance.
type testGenome struct {
	gid   GID
	trait float64

	hasM, hasF     bool
	mother, father GID
}

func (g *testGenome) ID() GID { return g.gid }

func (g *testGenome) HasParent(which Parent) bool {
	if which == Mother {
		return g.hasM
	}
	return g.hasF
}

func (g *testGenome) ParentID(which Parent) GID {
	if which == Mother {
		return g.mother
	}
	return g.father
}

type testGenomeWire struct {
	GID    GID     `json:"gid"`
	Trait  float64 `json:"trait"`
	HasM   bool    `json:"has_m,omitempty"`
	HasF   bool    `json:"has_f,omitempty"`
	Mother GID     `json:"mother,omitempty"`
	Father GID     `json:"father,omitempty"`
}

func (g *testGenome) MarshalJSON() ([]byte, error) {
	return json.Marshal(testGenomeWire{
		GID: g.gid, Trait: g.trait,
		HasM: g.hasM, HasF: g.hasF,
		Mother: g.mother, Father: g.father,
	})
}

func (g *testGenome) UnmarshalJSON(data []byte) error {
	var w testGenomeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	g.gid, g.trait = w.GID, w.Trait
	g.hasM, g.mother = w.HasM, w.Mother
	g.hasF, g.father = w.HasF, w.Father
	return nil
}

func founder(gid GID, trait float64) *testGenome {
	return &testGenome{gid: gid, trait: trait}
}

func child(gid GID, trait float64, mother GID) *testGenome {
	return &testGenome{gid: gid, trait: trait, hasM: true, mother: mother}
}

func offspring(gid GID, trait float64, mother, father GID) *testGenome {
	return &testGenome{gid: gid, trait: trait, hasM: true, mother: mother, hasF: true, father: father}
}

func testOps() Ops[*testGenome] {
	return Ops[*testGenome]{
		Distance: func(a, b *testGenome) float64 {
			d := a.trait - b.trait
			if d < 0 {
				d = -d
			}
			return d
		},
		Compatibility: func(g *testGenome, distance float64) float64 {
			return math.Exp(-(distance * distance) / 2)
		},
	}
}

func newTestTree(cfg Config) *Tree[*testGenome] {
	return NewTree[*testGenome](cfg, testOps(), nil)
}

// testConfig returns a small, deterministic configuration tuned so a single
// matching representative is enough to produce a positive species-matching
// score: EnveloppeSize=2, SimilarityThreshold=0.4 means a lone matable
// representative scores 1 - 0.4*2 = 0.2 > 0, while zero matable
// representatives scores -0.8 < 0.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.EnveloppeSize = 2
	cfg.CompatibilityThreshold = 0.5
	cfg.SimilarityThreshold = 0.4
	cfg.AvgCompatibilityThreshold = 0.1
	return cfg
}

// recordingSink implements EventSink, capturing every call for assertions.
type recordingSink struct {
	steppedAliveSets [][]SID
	newSpecies       []struct{ parent, sid SID }
	entered          []struct {
		sid SID
		gid GID
	}
	left []struct {
		sid SID
		gid GID
	}
	principalChanged []struct {
		sid, previous, current SID
	}
}

func (s *recordingSink) OnStepped(_ EventMeta, aliveSet []SID) {
	s.steppedAliveSets = append(s.steppedAliveSets, aliveSet)
}

func (s *recordingSink) OnNewSpecies(_ EventMeta, parent, sid SID) {
	s.newSpecies = append(s.newSpecies, struct{ parent, sid SID }{parent, sid})
}

func (s *recordingSink) OnGenomeEntersEnveloppe(_ EventMeta, sid SID, gid GID) {
	s.entered = append(s.entered, struct {
		sid SID
		gid GID
	}{sid, gid})
}

func (s *recordingSink) OnGenomeLeavesEnveloppe(_ EventMeta, sid SID, gid GID) {
	s.left = append(s.left, struct {
		sid SID
		gid GID
	}{sid, gid})
}

func (s *recordingSink) OnPrincipalContributorChanged(_ EventMeta, sid SID, previous, current SID) {
	s.principalChanged = append(s.principalChanged, struct {
		sid, previous, current SID
	}{sid, previous, current})
}

func TestAddGenomeFoundsRootSpecies(t *testing.T) {
	tree := newTestTree(testConfig())
	sid, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)
	require.Equal(t, tree.Root(), sid)
	require.Equal(t, SID(0), sid)

	data, ok := tree.NodeAt(sid)
	require.True(t, ok)
	require.Equal(t, uint(1), data.Count)
}

func TestAddGenomeDuplicateRejected(t *testing.T) {
	tree := newTestTree(testConfig())
	_, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)

	_, err = tree.AddGenome(founder(1, 0), nil)
	var preErr *PreconditionError
	require.True(t, errors.As(err, &preErr))
	require.True(t, errors.Is(err, ErrDuplicateGenome))
}

func TestAddGenomeMissingParentRejected(t *testing.T) {
	tree := newTestTree(testConfig())
	_, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)

	_, err = tree.AddGenome(child(2, 0.1, 999), nil)
	var preErr *PreconditionError
	require.True(t, errors.As(err, &preErr))
	require.True(t, errors.Is(err, ErrMissingParent))
}

func TestAddGenomeCloseRelativeJoinsSameSpecies(t *testing.T) {
	tree := newTestTree(testConfig())
	rootSID, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)

	sid, err := tree.AddGenome(child(2, 0.1, 1), nil)
	require.NoError(t, err)
	require.Equal(t, rootSID, sid)

	data, _ := tree.NodeAt(rootSID)
	require.Equal(t, uint(2), data.Count)
}

func TestAddGenomeDistantRelativeSpeciatesAsChild(t *testing.T) {
	cfg := testConfig()
	cfg.CompatibilityThreshold = 0.99 // near-impossible to match at any real distance
	tree := newTestTree(cfg)

	rootSID, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)

	sid, err := tree.AddGenome(child(2, 50, 1), nil)
	require.NoError(t, err)
	require.NotEqual(t, rootSID, sid)

	data, ok := tree.NodeAt(sid)
	require.True(t, ok)
	require.Equal(t, uint(1), data.Count)
}

func TestAddGenomeFillsEnveloppeThenJudges(t *testing.T) {
	tree := newTestTree(testConfig())
	rootSID, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)

	_, err = tree.AddGenome(child(2, 0.1, 1), nil)
	require.NoError(t, err)

	sid, err := tree.AddGenome(child(3, 0.2, 1), nil)
	require.NoError(t, err)
	require.Equal(t, rootSID, sid)

	data, _ := tree.NodeAt(rootSID)
	require.Equal(t, uint(3), data.Count)
}

func TestDelGenomeUnknownRejected(t *testing.T) {
	tree := newTestTree(testConfig())
	_, err := tree.DelGenome(founder(123, 0))
	var preErr *PreconditionError
	require.True(t, errors.As(err, &preErr))
	require.True(t, errors.Is(err, ErrUnknownGenome))
}

func TestDelGenomeReleasesReference(t *testing.T) {
	tree := newTestTree(testConfig())
	f := founder(1, 0)
	sid, err := tree.AddGenome(f, nil)
	require.NoError(t, err)

	gotSID, err := tree.DelGenome(f)
	require.NoError(t, err)
	require.Equal(t, sid, gotSID)

	_, ok := tree.SpeciesOf(GID(1))
	require.False(t, ok)
}

func TestStepAdvancesClockAndEmits(t *testing.T) {
	sink := &recordingSink{}
	tree := NewTree[*testGenome](testConfig(), testOps(), sink)

	f := founder(1, 0)
	sid, err := tree.AddGenome(f, nil)
	require.NoError(t, err)

	require.NoError(t, tree.Step(1, []GID{1}))
	require.Equal(t, uint(1), tree.CurrentStep())
	require.Len(t, sink.steppedAliveSets, 1)
	require.Equal(t, []SID{sid}, sink.steppedAliveSets[0])

	require.NoError(t, tree.Step(2, nil))
	require.Equal(t, uint(2), tree.CurrentStep())
	require.Len(t, sink.steppedAliveSets, 2)
	require.Empty(t, sink.steppedAliveSets[1])
}

func TestHybridCounting(t *testing.T) {
	cfg := testConfig()
	cfg.CompatibilityThreshold = 0.99 // force the second founder into its own species
	tree := newTestTree(cfg)

	_, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)
	_, err = tree.AddGenome(founder(2, 50), nil)
	require.NoError(t, err)
	require.Equal(t, uint(0), tree.Hybrids())

	_, err = tree.AddGenome(offspring(3, 0, 1, 2), nil)
	require.NoError(t, err)
	require.Equal(t, uint(1), tree.Hybrids())
}

func TestHybridRejectedWhenNotIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.CompatibilityThreshold = 0.99
	cfg.IgnoreHybrids = false
	tree := newTestTree(cfg)

	_, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)
	_, err = tree.AddGenome(founder(2, 50), nil)
	require.NoError(t, err)

	_, err = tree.AddGenome(offspring(3, 0, 1, 2), nil)
	require.True(t, errors.Is(err, ErrHybridRejected))
}

// TestHybridContributesToOtherParentSpecies exercises spec §4.5's hybrid
// ancestry mechanism (scenario E5): a hybrid joining its mother's species
// still leaves a contributor entry for the father's species.
func TestHybridContributesToOtherParentSpecies(t *testing.T) {
	cfg := testConfig()
	cfg.CompatibilityThreshold = 0.99 // keep the two founders in separate species
	tree := newTestTree(cfg)

	motherSID, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)
	_, err = tree.AddGenome(founder(2, 50), nil)
	require.NoError(t, err)

	// Loosen the threshold back down so the hybrid, trait-identical to the
	// mother, actually matches her species.
	tree.cfg.CompatibilityThreshold = 0.5

	sid, err := tree.AddGenome(offspring(3, 0, 1, 2), nil)
	require.NoError(t, err)
	require.Equal(t, motherSID, sid)

	n := tree.nodes[motherSID]
	found := false
	for _, nc := range n.contribs.entries() {
		if nc.sid != motherSID && nc.count > 0 {
			found = true
		}
	}
	require.True(t, found, "expected the mother's species to carry a contributor entry for the father's species")
}

// TestUpdateContributionsReparents drives Tree.updateContributions directly
// against a hand-built pair of sibling species (spec §4.7/§9 scenario E6): X
// starts parented under Y, then accumulates enough contributions from Z to
// overtake Y as principal, triggering a reparent.
func TestUpdateContributionsReparents(t *testing.T) {
	sink := &recordingSink{}
	tree := NewTree[*testGenome](testConfig(), testOps(), sink)

	ySID := tree.makeNode(InvalidSID)
	zSID := tree.makeNode(InvalidSID)
	xSID := tree.makeNode(ySID)
	tree.nodes[ySID].addChild(xSID)

	x := tree.nodes[xSID]
	multiset := make([]SID, 0, 13)
	for i := 0; i < 10; i++ {
		multiset = append(multiset, ySID)
	}
	for i := 0; i < 3; i++ {
		multiset = append(multiset, zSID)
	}
	require.True(t, x.contribs.update(multiset))
	principal, ok := x.contribs.principal()
	require.True(t, ok)
	require.Equal(t, ySID, principal)

	more := make([]SID, 8)
	for i := range more {
		more[i] = zSID
	}
	require.NoError(t, tree.updateContributions(x, more, tree.newEventMeta()))

	require.Equal(t, zSID, x.parent)
	require.NotContains(t, tree.nodes[ySID].children, xSID)
	require.Contains(t, tree.nodes[zSID].children, xSID)
	require.Len(t, sink.principalChanged, 1)
	require.Equal(t, xSID, sink.principalChanged[0].sid)
	require.Equal(t, ySID, sink.principalChanged[0].previous)
	require.Equal(t, zSID, sink.principalChanged[0].current)
}

// TestUpdateContributionsNeverReparentsRoot guards the defensive carve-out
// added beyond the literal spec text: a hybrid whose two parent species are
// the tree's root and some other top-level branch must never leave the root
// with a parent of its own.
func TestUpdateContributionsNeverReparentsRoot(t *testing.T) {
	tree := newTestTree(testConfig())
	rootSID, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)

	root := tree.nodes[rootSID]
	require.NoError(t, tree.updateContributions(root, []SID{rootSID, SID(999)}, tree.newEventMeta()))
	require.Equal(t, InvalidSID, root.parent)
}

// TestHybridRejectedDoesNotLeakRefcount guards against a genuine bug: a
// genome rejected as a cross-species hybrid is never inserted into the
// index, so if parent_sid's refcount increment had already been applied
// before the rejection, both parents' counts would be inflated forever
// (violating P2) since nothing would ever release it.
func TestHybridRejectedDoesNotLeakRefcount(t *testing.T) {
	cfg := testConfig()
	cfg.CompatibilityThreshold = 0.99
	cfg.IgnoreHybrids = false
	tree := newTestTree(cfg)

	_, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)
	_, err = tree.AddGenome(founder(2, 50), nil)
	require.NoError(t, err)

	motherRC, ok := tree.RefcountOf(GID(1))
	require.True(t, ok)
	fatherRC, ok := tree.RefcountOf(GID(2))
	require.True(t, ok)

	_, err = tree.AddGenome(offspring(3, 0, 1, 2), nil)
	require.True(t, errors.Is(err, ErrHybridRejected))

	afterMotherRC, ok := tree.RefcountOf(GID(1))
	require.True(t, ok)
	afterFatherRC, ok := tree.RefcountOf(GID(2))
	require.True(t, ok)
	require.Equal(t, motherRC, afterMotherRC, "rejected hybrid must not inflate the mother's refcount")
	require.Equal(t, fatherRC, afterFatherRC, "rejected hybrid must not inflate the father's refcount")
}

// TestAddGenomeEventsShareCorrelationID guards the correlation contract
// documented on EventMeta: every event fired by a single AddGenome call,
// including a speciation's distinct enters-enveloppe and on_new_species
// events, must carry the same CorrelationID.
func TestAddGenomeEventsShareCorrelationID(t *testing.T) {
	cfg := testConfig()
	cfg.CompatibilityThreshold = 0.99 // force speciation
	sink := &recordingCorrelationSink{}
	tree := NewTree[*testGenome](cfg, testOps(), sink)

	_, err := tree.AddGenome(founder(1, 0), nil)
	require.NoError(t, err)
	sink.ids = nil // keep only the events of the speciating call below
	_, err = tree.AddGenome(founder(2, 50), nil)
	require.NoError(t, err)

	require.NotEmpty(t, sink.ids)
	for _, id := range sink.ids[1:] {
		require.Equal(t, sink.ids[0], id, "all events from one AddGenome call must share a CorrelationID")
	}
}

// recordingCorrelationSink captures only each event's CorrelationID.
type recordingCorrelationSink struct {
	ids []string
}

func (s *recordingCorrelationSink) OnStepped(meta EventMeta, _ []SID)           { s.record(meta) }
func (s *recordingCorrelationSink) OnNewSpecies(meta EventMeta, _, _ SID)       { s.record(meta) }
func (s *recordingCorrelationSink) OnGenomeEntersEnveloppe(meta EventMeta, _ SID, _ GID) {
	s.record(meta)
}
func (s *recordingCorrelationSink) OnGenomeLeavesEnveloppe(meta EventMeta, _ SID, _ GID) {
	s.record(meta)
}
func (s *recordingCorrelationSink) OnPrincipalContributorChanged(meta EventMeta, _ SID, _, _ SID) {
	s.record(meta)
}
func (s *recordingCorrelationSink) record(meta EventMeta) {
	s.ids = append(s.ids, meta.CorrelationID.String())
}

// TestNewTreeVerboseEnablesDebugChecks exercises the Config.Verbose wiring:
// constructing a tree with Verbose set flips the package-level debugChecks
// gate, and the node-level P1/P3 assertions it guards actually catch broken
// invariants.
func TestNewTreeVerboseEnablesDebugChecks(t *testing.T) {
	debugChecks = false
	t.Cleanup(func() { debugChecks = false })

	cfg := testConfig()
	cfg.Verbose = true
	_ = NewTree[*testGenome](cfg, testOps(), nil)
	require.True(t, debugChecks, "NewTree must enable debugChecks when Config.Verbose is set")

	n := newNode[*testGenome](SID(0), InvalidSID, 3, 0)
	n.env.reps = []representative[*testGenome]{{genome: founder(1, 0)}, {genome: founder(2, 1)}}
	err := n.checkInvariants()
	var invErr *InvariantError
	require.True(t, errors.As(err, &invErr))
	require.Equal(t, "P1", invErr.Invariant)

	n.env.distances[orderedPair(0, 1)] = 1
	require.NoError(t, n.checkInvariants())

	n.parent = n.sid
	err = n.checkParentAttachment(func(SID) []SID { return nil })
	require.True(t, errors.As(err, &invErr))
	require.Equal(t, "P3", invErr.Invariant)

	n.parent = SID(7)
	err = n.checkParentAttachment(func(SID) []SID { return nil })
	require.True(t, errors.As(err, &invErr))
	require.Equal(t, "P3", invErr.Invariant)

	err = n.checkParentAttachment(func(sid SID) []SID { return []SID{n.sid} })
	require.NoError(t, err)
}
