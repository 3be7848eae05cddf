// Package examplegenome provides a minimal concrete Genome for exercising
// phylogeny.Tree: a fixed-length real-valued trait vector compared by
// Euclidean distance. It exists for tests and the ptree CLI demo, not as
// part of the classification engine itself.
package examplegenome

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/kgd-al/apoget-go/phylogeny"
)

// Genome is a fixed-length vector of real-valued traits, optionally carrying
// up to two parent references.
type Genome struct {
	Key    phylogeny.GID
	Traits []float64

	hasMother, hasFather bool
	mother, father       phylogeny.GID

	// Sigma controls how quickly this genome's compatibility falls off with
	// distance; smaller values make it pickier about who it considers
	// close kin. Defaults to 1.0 when zero.
	Sigma float64
}

// New creates a founder genome with no recorded parents.
func New(key phylogeny.GID, traits []float64) *Genome {
	return &Genome{Key: key, Traits: traits, Sigma: 1.0}
}

// NewOffspring creates a genome descending from one or two parents. Pass
// phylogeny.InvalidGID for father to record a single-parent (asexual)
// genome.
func NewOffspring(key phylogeny.GID, mother, father phylogeny.GID, traits []float64) *Genome {
	g := &Genome{Key: key, Traits: traits, Sigma: 1.0}
	if mother != phylogeny.InvalidGID {
		g.hasMother, g.mother = true, mother
	}
	if father != phylogeny.InvalidGID {
		g.hasFather, g.father = true, father
	}
	return g
}

// ID implements phylogeny.Genome.
func (g *Genome) ID() phylogeny.GID { return g.Key }

// HasParent implements phylogeny.Genome.
func (g *Genome) HasParent(which phylogeny.Parent) bool {
	switch which {
	case phylogeny.Mother:
		return g.hasMother
	case phylogeny.Father:
		return g.hasFather
	default:
		return false
	}
}

// ParentID implements phylogeny.Genome.
func (g *Genome) ParentID(which phylogeny.Parent) phylogeny.GID {
	switch which {
	case phylogeny.Mother:
		return g.mother
	case phylogeny.Father:
		return g.father
	default:
		return phylogeny.InvalidGID
	}
}

func (g *Genome) String() string {
	return fmt.Sprintf("Genome(%s, traits=%v)", g.Key, g.Traits)
}

// genomeWire is the JSON wire shape of a Genome, exporting the parent slots
// that are otherwise kept unexported on the struct itself.
type genomeWire struct {
	Key    phylogeny.GID  `json:"key"`
	Traits []float64      `json:"traits"`
	Sigma  float64        `json:"sigma"`
	Mother *phylogeny.GID `json:"mother,omitempty"`
	Father *phylogeny.GID `json:"father,omitempty"`
}

// MarshalJSON lets a Genome round-trip through phylogeny.Tree's JSON
// snapshot format (spec's embedded genome_json representative field).
func (g *Genome) MarshalJSON() ([]byte, error) {
	w := genomeWire{Key: g.Key, Traits: g.Traits, Sigma: g.Sigma}
	if g.hasMother {
		w.Mother = &g.mother
	}
	if g.hasFather {
		w.Father = &g.father
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (g *Genome) UnmarshalJSON(data []byte) error {
	var w genomeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	g.Key, g.Traits, g.Sigma = w.Key, w.Traits, w.Sigma
	if w.Mother != nil {
		g.hasMother, g.mother = true, *w.Mother
	}
	if w.Father != nil {
		g.hasFather, g.father = true, *w.Father
	}
	return nil
}

// Distance is the Euclidean distance between two genomes' trait vectors. It
// panics if the vectors have mismatched lengths, since that indicates a
// producer bug rather than a recoverable runtime condition.
func Distance(a, b *Genome) float64 {
	if len(a.Traits) != len(b.Traits) {
		panic("examplegenome: trait vectors have mismatched length")
	}
	sum := 0.0
	for i := range a.Traits {
		d := a.Traits[i] - b.Traits[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Compatibility is a Gaussian falloff centred on zero distance, scaled by
// g's own Sigma. It is unimodal, but its peak is at distance zero for every
// genome and, since distances are non-negative, it falls off on one side
// only; Sigma sets only how fast it falls.
func Compatibility(g *Genome, distance float64) float64 {
	sigma := g.Sigma
	if sigma == 0 {
		sigma = 1.0
	}
	return math.Exp(-(distance * distance) / (2 * sigma * sigma))
}

// Ops returns the phylogeny.Ops value wiring Distance/Compatibility for use
// with phylogeny.NewTree.
func Ops() phylogeny.Ops[*Genome] {
	return phylogeny.Ops[*Genome]{
		Distance:      Distance,
		Compatibility: Compatibility,
	}
}
