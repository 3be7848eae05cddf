package phylogeny

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Config holds every tunable the classification engine reads (spec §6,
// "Configuration (enumerated)"). Loaded the same way the teacher loads its
// own NEAT configuration: an ini-backed struct mapped via MapTo, with a
// handful of manually-reloaded keys to dodge ini.v1's comment-splitting
// quirks on bool/float values.
type Config struct {
	// CompatibilityThreshold is the minimum per-representative compatibility
	// c = min(g.compat(d), e.compat(d)) to count as "matable" in
	// semi-continuous scoring.
	CompatibilityThreshold float64 `ini:"compatibility_threshold"`

	// AvgCompatibilityThreshold is subtracted from the mean compatibility in
	// continuous scoring mode.
	AvgCompatibilityThreshold float64 `ini:"avg_compatibility_threshold"`

	// SimilarityThreshold is the fraction of representatives (scaled by K)
	// required to match in semi-continuous scoring.
	SimilarityThreshold float64 `ini:"similarity_threshold"`

	// EnveloppeSize is K, the number of representative genomes retained per
	// species.
	EnveloppeSize int `ini:"enveloppe_size"`

	// SimpleNewSpecies, when true, creates a new species whenever no
	// existing one matches. False is reserved for a future policy and is
	// presently a ConfigurationGap (spec §6).
	SimpleNewSpecies bool `ini:"simple_new_species"`

	// IgnoreHybrids, when true, accepts cross-species births without
	// complaint; when false, a genome whose two parents belong to
	// different species is rejected.
	IgnoreHybrids bool `ini:"ignore_hybrids"`

	// FullContinuous selects the continuous species-matching score (spec
	// §4.3) over the default semi-continuous one.
	FullContinuous bool `ini:"full_continuous"`

	// JudgeRule selects which of the four enveloppe-contribution rules
	// (spec §4.4) decides representative replacement once a species'
	// enveloppe is full. Corresponds to the original's debug_env_crit.
	JudgeRule JudgeRule `ini:"debug_env_crit"`

	// Verbose enables debug-level invariant checks, the engine's
	// equivalent of the original core's non-NDEBUG build. It turns on no
	// logging or tracing.
	Verbose bool `ini:"verbose"`
}

// DefaultConfig returns the engine's out-of-the-box tuning, matching spec
// §6's stated defaults where given (compatibility_threshold 0.1,
// similarity_threshold 0.5, enveloppe_size 5, simple_new_species and
// ignore_hybrids true).
func DefaultConfig() Config {
	return Config{
		CompatibilityThreshold:    0.1,
		AvgCompatibilityThreshold: 0.1,
		SimilarityThreshold:       0.5,
		EnveloppeSize:             5,
		SimpleNewSpecies:          true,
		IgnoreHybrids:             true,
		FullContinuous:            false,
		JudgeRule:                 RuleMaxAverageGain,
		Verbose:                   false,
	}
}

// LoadConfig reads a Config from an ini file's [Phylogeny] section,
// defaulting any field the file omits. Mirrors the teacher's LoadConfig:
// ini.LoadSources with inline-comment tolerance, MapTo onto the struct, then
// a manual re-read of the bool/float keys MapTo is known to mishandle when a
// value is immediately followed by a comment.
func LoadConfig(filePath string) (*Config, error) {
	cfg := DefaultConfig()

	src, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:         true,
		UnescapeValueCommentSymbols: true,
	}, filePath)
	if err != nil {
		return nil, fmt.Errorf("phylogeny: failed to load config file %q: %w", filePath, err)
	}

	section := src.Section("Phylogeny")
	if err := section.MapTo(&cfg); err != nil {
		return nil, fmt.Errorf("phylogeny: failed to map [Phylogeny] section: %w", err)
	}

	for _, key := range []string{"simple_new_species", "ignore_hybrids", "full_continuous", "verbose"} {
		if k, err := section.GetKey(key); err == nil {
			if v, err := k.Bool(); err == nil {
				switch key {
				case "simple_new_species":
					cfg.SimpleNewSpecies = v
				case "ignore_hybrids":
					cfg.IgnoreHybrids = v
				case "full_continuous":
					cfg.FullContinuous = v
				case "verbose":
					cfg.Verbose = v
				}
			}
		}
	}
	for _, key := range []string{"compatibility_threshold", "avg_compatibility_threshold", "similarity_threshold"} {
		if k, err := section.GetKey(key); err == nil {
			if v, err := k.Float64(); err == nil {
				switch key {
				case "compatibility_threshold":
					cfg.CompatibilityThreshold = v
				case "avg_compatibility_threshold":
					cfg.AvgCompatibilityThreshold = v
				case "similarity_threshold":
					cfg.SimilarityThreshold = v
				}
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports a ConfigurationGap-class error (spec §7) if the config
// cannot possibly describe a valid tree.
func (c Config) Validate() error {
	if c.EnveloppeSize < 2 {
		return fmt.Errorf("phylogeny: enveloppe_size must be >= 2, got %d", c.EnveloppeSize)
	}
	if c.JudgeRule < RuleMaxAverageGain || c.JudgeRule > RuleWeightedDistanceToMean {
		return fmt.Errorf("%w: debug_env_crit=%d", ErrUnknownJudgeRule, int(c.JudgeRule))
	}
	if !c.SimpleNewSpecies {
		return fmt.Errorf("%w: simple_new_species=false is reserved for a future policy", ErrConfigurationGap)
	}
	return nil
}
