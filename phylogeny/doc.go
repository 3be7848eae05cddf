// Package phylogeny classifies a stream of genomes into a dynamic species
// tree as they are born, live, and die. It keeps a bounded set of
// representative genomes per species, tracks which ancestor species
// contributed the most members to each species, and reshapes the tree
// as that contribution shifts, without ever evolving, mutating, or
// otherwise owning the genomes it classifies.
//
// The engine is generic over the caller's genome type: anything satisfying
// the small Genome interface, plus a pair of distance/compatibility
// functions supplied as an Ops value, can be tracked by a Tree.
package phylogeny
