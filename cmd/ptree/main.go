// Command ptree loads a saved phylogeny.Tree snapshot, reports a one-line
// summary of it, and optionally re-saves it — the same role
// examples/xor/main.go plays for the teacher's NEAT package, adapted to a
// snapshot-in/snapshot-out tool instead of a training loop.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kgd-al/apoget-go/examplegenome"
	"github.com/kgd-al/apoget-go/phylogeny"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run implements the CLI contract: a mandatory tree/snapshot path plus a
// scalar flag overriding each Config field, exit 0 on success, 1 when the
// tree argument is missing, 2 when loading the snapshot (or the resulting
// configuration) fails.
func run(args []string) int {
	fs := flag.NewFlagSet("ptree", flag.ContinueOnError)

	var treePath string
	fs.StringVar(&treePath, "t", "", "path to a saved tree snapshot (required)")
	fs.StringVar(&treePath, "tree", "", "path to a saved tree snapshot (required, same as -t)")
	out := fs.String("out", "", "path to re-save the tree to after loading (gzip+JSON, default: no re-save)")
	format := fs.String("format", "text", "stdout report: text (one-line summary), json, or yaml (full snapshot)")

	cfg := phylogeny.DefaultConfig()
	fs.Float64Var(&cfg.CompatibilityThreshold, "compatibility_threshold", cfg.CompatibilityThreshold,
		"minimum per-representative compatibility to count as matable")
	fs.Float64Var(&cfg.AvgCompatibilityThreshold, "avg_compatibility_threshold", cfg.AvgCompatibilityThreshold,
		"mean-compatibility threshold used by the continuous scoring mode")
	fs.Float64Var(&cfg.SimilarityThreshold, "similarity_threshold", cfg.SimilarityThreshold,
		"fraction of representatives (scaled by enveloppe size) required to match")
	fs.IntVar(&cfg.EnveloppeSize, "enveloppe_size", cfg.EnveloppeSize,
		"number of representative genomes retained per species")
	fs.BoolVar(&cfg.SimpleNewSpecies, "simple_new_species", cfg.SimpleNewSpecies,
		"create a new species whenever no existing one matches")
	fs.BoolVar(&cfg.IgnoreHybrids, "ignore_hybrids", cfg.IgnoreHybrids,
		"accept cross-species births instead of rejecting them")
	fs.BoolVar(&cfg.FullContinuous, "full_continuous", cfg.FullContinuous,
		"use the continuous species-matching score instead of semi-continuous")
	judgeRule := fs.Int("debug_env_crit", int(cfg.JudgeRule), "enveloppe-contribution judge rule (0-3)")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable debug-level invariant checks")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg.JudgeRule = phylogeny.JudgeRule(*judgeRule)

	if treePath == "" {
		fmt.Fprintln(os.Stderr, "usage: ptree -tree <snapshot-file> [config overrides] [-out path] [-format text|json|yaml]")
		return 1
	}

	if err := cfg.Validate(); err != nil {
		log.Printf("invalid configuration: %v", err)
		return 2
	}

	tree, err := phylogeny.LoadTreeFromFile[*examplegenome.Genome](treePath, cfg, examplegenome.Ops(), nil)
	if err != nil {
		log.Printf("failed to load tree %q: %v", treePath, err)
		return 2
	}

	report, err := summarize(tree, *format)
	if err != nil {
		log.Printf("failed to render report: %v", err)
		return 2
	}
	fmt.Println(report)

	if *out != "" {
		if err := tree.SaveToFile(*out); err != nil {
			log.Printf("failed to re-save tree to %q: %v", *out, err)
			return 2
		}
	}

	return 0
}

// summarize renders the loaded tree's state for stdout: a one-line summary
// by default, or the full snapshot in json/yaml for callers that want to
// inspect (or diff) it directly.
func summarize(tree *phylogeny.Tree[*examplegenome.Genome], format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return fmt.Sprintf("species=%d step=%d hybrids=%d", tree.Width(), tree.CurrentStep(), tree.Hybrids()), nil
	case "json", "yaml":
		data, err := tree.MarshalJSON()
		if err != nil {
			return "", err
		}
		rendered, err := render(data, format)
		if err != nil {
			return "", err
		}
		return string(rendered), nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, or yaml)", format)
	}
}

// render converts the tree's canonical JSON snapshot into the requested
// output format. yaml.v3 round-trips through an interface{} decode, the
// simplest way to reuse the JSON codec as the single source of truth for
// field shapes while still offering a YAML rendering for CLI users.
func render(jsonData []byte, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "json":
		var buf strings.Builder
		if err := json.Indent(&buf, jsonData, "", "  "); err != nil {
			return nil, err
		}
		return []byte(buf.String()), nil
	case "yaml":
		var generic any
		if err := json.Unmarshal(jsonData, &generic); err != nil {
			return nil, err
		}
		return yaml.Marshal(generic)
	default:
		return nil, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
