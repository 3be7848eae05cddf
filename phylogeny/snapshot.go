package phylogeny

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MarshalJSON returns the array-shaped wire snapshot of SpeciesData:
// [firstAppearance, lastAppearance, count]. The original core serializes
// this struct as a plain 3-element JSON array (speciesdata.hpp's to_json),
// so the Go encoding follows the same compact shape rather than an
// idiomatic field-named object.
func (d SpeciesData) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]uint{d.FirstAppearance, d.LastAppearance, d.Count})
}

// UnmarshalJSON parses the [firstAppearance, lastAppearance, count] array
// shape written by MarshalJSON.
func (d *SpeciesData) UnmarshalJSON(data []byte) error {
	var arr [3]uint
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("%w: SpeciesData: %v", ErrMalformedSnapshot, err)
	}
	d.FirstAppearance, d.LastAppearance, d.Count = arr[0], arr[1], arr[2]
	return nil
}

// MarshalJSON renders a NodeContributor as the 2-element [sid, count] array
// spec §6 names.
func (c nodeContributor) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint64{uint64(c.sid), uint64(c.count)})
}

// UnmarshalJSON parses the [sid, count] array shape.
func (c *nodeContributor) UnmarshalJSON(data []byte) error {
	var arr [2]uint64
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("%w: contributor: %v", ErrMalformedSnapshot, err)
	}
	c.sid, c.count = SID(arr[0]), uint(arr[1])
	return nil
}

// contributorsSnapshot is the wire shape of a whole contributor list: the
// 2-element [owner_sid, [NodeContributor...]] array spec §6 names.
type contributorsSnapshot struct {
	owner SID
	list  []nodeContributor
}

func (c contributorsSnapshot) MarshalJSON() ([]byte, error) {
	list := c.list
	if list == nil {
		list = []nodeContributor{}
	}
	return json.Marshal([2]any{c.owner, list})
}

func (c *contributorsSnapshot) UnmarshalJSON(data []byte) error {
	var arr [2]json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("%w: contributors: %v", ErrMalformedSnapshot, err)
	}
	var owner SID
	if err := json.Unmarshal(arr[0], &owner); err != nil {
		return fmt.Errorf("%w: contributors owner: %v", ErrMalformedSnapshot, err)
	}
	var list []nodeContributor
	if err := json.Unmarshal(arr[1], &list); err != nil {
		return fmt.Errorf("%w: contributors list: %v", ErrMalformedSnapshot, err)
	}
	c.owner, c.list = owner, list
	return nil
}

// distanceEntry is the wire shape of one distance-map record: the 2-element
// [[i,j], d] array spec §6 names.
type distanceEntry struct {
	i, j int
	d    float64
}

func (e distanceEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{[2]int{e.i, e.j}, e.d})
}

func (e *distanceEntry) UnmarshalJSON(data []byte) error {
	var arr [2]json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("%w: distance entry: %v", ErrMalformedSnapshot, err)
	}
	var pair [2]int
	if err := json.Unmarshal(arr[0], &pair); err != nil {
		return fmt.Errorf("%w: distance entry indices: %v", ErrMalformedSnapshot, err)
	}
	var d float64
	if err := json.Unmarshal(arr[1], &d); err != nil {
		return fmt.Errorf("%w: distance entry value: %v", ErrMalformedSnapshot, err)
	}
	e.i, e.j, e.d = pair[0], pair[1], d
	return nil
}

// marshalRepresentative renders a representative as the 2-element
// [genome_json, user_data_json] array spec §6 names. The genome itself is
// marshaled with the standard library's reflective encoding (or its own
// MarshalJSON, if G implements json.Marshaler) — the engine does not know
// or care about G's wire shape beyond that it round-trips.
func marshalRepresentative[G Genome](r representative[G]) (json.RawMessage, error) {
	genomeJSON, err := json.Marshal(r.genome)
	if err != nil {
		return nil, fmt.Errorf("phylogeny: marshaling representative genome %s: %w", r.genome.ID(), err)
	}
	userJSON, err := json.Marshal(r.userData)
	if err != nil {
		return nil, fmt.Errorf("phylogeny: marshaling representative user data for %s: %w", r.genome.ID(), err)
	}
	return json.Marshal([2]json.RawMessage{genomeJSON, userJSON})
}

// unmarshalRepresentative parses the [genome_json, user_data_json] array
// shape, reconstructing a concrete G by unmarshaling genome_json into a
// fresh zero value. This requires G to be instantiated as a concrete type
// (e.g. a caller's *MyGenome), not the bare Genome interface itself — the
// usual way callers parameterize Tree[G].
func unmarshalRepresentative[G Genome](raw json.RawMessage) (representative[G], error) {
	var arr [2]json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return representative[G]{}, fmt.Errorf("%w: representative: %v", ErrMalformedSnapshot, err)
	}
	var g G
	if err := json.Unmarshal(arr[0], &g); err != nil {
		return representative[G]{}, fmt.Errorf("%w: representative genome: %v", ErrMalformedSnapshot, err)
	}
	var userData any
	if len(arr[1]) > 0 && string(arr[1]) != "null" {
		if err := json.Unmarshal(arr[1], &userData); err != nil {
			return representative[G]{}, fmt.Errorf("%w: representative user data: %v", ErrMalformedSnapshot, err)
		}
	}
	return representative[G]{genome: g, userData: userData}, nil
}

// speciesNodeJSON is the wire shape of one species node: an object with
// keys id, data, contributors, rset, distances, children (spec §6), the
// last holding nested species-node objects rather than a flat list.
type speciesNodeJSON struct {
	ID           SID                  `json:"id"`
	Data         SpeciesData          `json:"data"`
	Contributors contributorsSnapshot `json:"contributors"`
	RSet         []json.RawMessage    `json:"rset"`
	Distances    []distanceEntry      `json:"distances"`
	Children     []*speciesNodeJSON   `json:"children"`
}

// buildSpeciesNodeJSON recursively renders sid and its descendants.
func buildSpeciesNodeJSON[G Genome](t *Tree[G], sid SID) (*speciesNodeJSON, error) {
	n, ok := t.nodes[sid]
	if !ok {
		return nil, &InvariantError{Invariant: "node-exists", Detail: fmt.Sprintf("species %s not found while snapshotting", sid)}
	}

	rset := make([]json.RawMessage, len(n.env.reps))
	for i, r := range n.env.reps {
		raw, err := marshalRepresentative(r)
		if err != nil {
			return nil, err
		}
		rset[i] = raw
	}

	distances := make([]distanceEntry, 0, len(n.env.distances))
	for key, d := range n.env.distances {
		distances = append(distances, distanceEntry{i: key.i, j: key.j, d: d})
	}
	sort.Slice(distances, func(a, b int) bool {
		if distances[a].i != distances[b].i {
			return distances[a].i < distances[b].i
		}
		return distances[a].j < distances[b].j
	})

	children := make([]*speciesNodeJSON, 0, len(n.children))
	for _, c := range n.children {
		cj, err := buildSpeciesNodeJSON(t, c)
		if err != nil {
			return nil, err
		}
		children = append(children, cj)
	}

	return &speciesNodeJSON{
		ID:           sid,
		Data:         n.data,
		Contributors: contributorsSnapshot{owner: n.contribs.owner, list: n.contribs.entries()},
		RSet:         rset,
		Distances:    distances,
		Children:     children,
	}, nil
}

// treeJSON is the top-level wire format spec §6 names:
// {root, next_sid, step, hybrids, index}.
type treeJSON struct {
	Root    *speciesNodeJSON  `json:"root"`
	NextSID SID               `json:"next_sid"`
	Step    uint              `json:"step"`
	Hybrids uint              `json:"hybrids"`
	Index   map[GID][2]uint64 `json:"index"`
}

// MarshalJSON serializes the tree's full classification state (spec §6).
// Configuration is deliberately not part of the wire format — callers
// restore a tree against whatever Config they are currently running with,
// via RestoreTree's explicit cfg parameter.
func (t *Tree[G]) MarshalJSON() ([]byte, error) {
	var root *speciesNodeJSON
	if t.root != InvalidSID {
		var err error
		root, err = buildSpeciesNodeJSON(t, t.root)
		if err != nil {
			return nil, err
		}
	}

	index := make(map[GID][2]uint64, t.index.len())
	for gid, e := range t.index.entries {
		index[gid] = [2]uint64{uint64(e.sid), uint64(e.refcount)}
	}

	return json.Marshal(treeJSON{
		Root:    root,
		NextSID: t.nextSID,
		Step:    t.step,
		Hybrids: t.hybrids,
		Index:   index,
	})
}

// restoreNode recursively reconstructs js (and its descendants) as live
// nodes attached to parent, registering each in t.nodes.
func restoreNode[G Genome](t *Tree[G], js *speciesNodeJSON, parent SID) error {
	n := newNode[G](js.ID, parent, t.cfg.EnveloppeSize, 0)
	n.data = js.Data
	n.contribs.owner = js.Contributors.owner
	n.contribs.list = append([]nodeContributor(nil), js.Contributors.list...)

	reps := make([]representative[G], len(js.RSet))
	for i, raw := range js.RSet {
		r, err := unmarshalRepresentative[G](raw)
		if err != nil {
			return err
		}
		reps[i] = r
	}
	n.env.reps = reps

	for _, de := range js.Distances {
		n.env.distances[orderedPair(de.i, de.j)] = de.d
	}

	t.nodes[js.ID] = n

	for _, cj := range js.Children {
		n.addChild(cj.ID)
		if err := restoreNode(t, cj, js.ID); err != nil {
			return err
		}
	}
	return nil
}

// RestoreTree rebuilds a Tree from a snapshot produced by MarshalJSON. cfg
// must match (or be compatible with) the configuration the tree was
// snapshotted under — in particular EnveloppeSize, since the wire format
// does not record it.
func RestoreTree[G Genome](data []byte, cfg Config, ops Ops[G], sink EventSink) (*Tree[G], error) {
	var tj treeJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ops.Distance == nil || ops.Compatibility == nil {
		return nil, fmt.Errorf("phylogeny: Ops.Distance and Ops.Compatibility are both required")
	}
	if cfg.Verbose {
		debugChecks = true
	}

	t := &Tree[G]{
		cfg:     cfg,
		ops:     ops,
		sink:    sink,
		nodes:   make(map[SID]*node[G]),
		root:    InvalidSID,
		nextSID: tj.NextSID,
		index:   newIDIndex(),
		step:    tj.Step,
		hybrids: tj.Hybrids,
	}

	if tj.Root != nil {
		t.root = tj.Root.ID
		if err := restoreNode(t, tj.Root, InvalidSID); err != nil {
			return nil, err
		}
	}

	for gid, pair := range tj.Index {
		t.index.entries[gid] = &idIndexEntry{sid: SID(pair[0]), refcount: uint(pair[1])}
	}

	return t, nil
}
