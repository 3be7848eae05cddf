package phylogeny

import "fmt"

// Sentinel errors returned by the tree's public operations (spec §7). Wrap
// them with fmt.Errorf("...: %w", ...) at call sites so callers can still
// errors.Is against these.
var (
	// ErrUnknownGenome is returned when an operation references a GID the
	// tree has no record of.
	ErrUnknownGenome = fmt.Errorf("phylogeny: unknown genome")

	// ErrNegativeRefcount signals an internal bookkeeping fault: a GID's
	// reference count would have dropped below zero.
	ErrNegativeRefcount = fmt.Errorf("phylogeny: reference count would go negative")

	// ErrMissingParent is returned when a genome declares a parent slot
	// populated but the parent GID is not known to the tree's index.
	ErrMissingParent = fmt.Errorf("phylogeny: parent genome not found in index")

	// ErrUnknownJudgeRule is returned when a Config names a debugEnvCrit
	// value outside the four defined enveloppe-contribution rules.
	ErrUnknownJudgeRule = fmt.Errorf("phylogeny: unknown enveloppe judge rule")

	// ErrMalformedSnapshot is returned when decoding a JSON snapshot whose
	// shape does not match the spec's array-based wire format.
	ErrMalformedSnapshot = fmt.Errorf("phylogeny: malformed snapshot")

	// ErrHybridRejected is returned by AddGenome when a genome's two
	// parents belong to different species and the tree's configuration has
	// IgnoreHybrids set to false.
	ErrHybridRejected = fmt.Errorf("phylogeny: cross-species hybrid rejected")

	// ErrDuplicateGenome is returned when AddGenome is called twice for the
	// same GID.
	ErrDuplicateGenome = fmt.Errorf("phylogeny: genome already known to this tree")

	// ErrConfigurationGap is returned by Config.Validate for any combination
	// of settings the engine does not (yet) know how to honor.
	ErrConfigurationGap = fmt.Errorf("phylogeny: unsupported configuration")
)

// PreconditionError reports that a caller violated an operation's stated
// precondition (e.g. deleting a genome that was never added).
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("phylogeny: %s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// InvariantError reports that an internal consistency check failed. The P1,
// P3 and no-cascading-reparent checks raise it only when debugChecks is
// enabled, as the original core's NDEBUG-gated assertions do; a lookup of a
// species node that does not exist raises it whatever debugChecks says.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("phylogeny: invariant %s violated: %s", e.Invariant, e.Detail)
}

// debugChecks gates the invariant assertions mirrored from the original
// core's checkMC()/assertEqual() debug-only machinery. Off by default;
// enabled by tests and by Config.Verbose.
var debugChecks = false
