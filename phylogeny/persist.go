package phylogeny

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
)

// SaveToFile writes the tree's JSON snapshot to filePath, gzip-compressed,
// the same persistence shape the teacher's SaveCheckpoint uses for its gob
// population dumps: a single gzip.Writer wrapping the encoder's output.
func (t *Tree[G]) SaveToFile(filePath string) error {
	data, err := t.MarshalJSON()
	if err != nil {
		return fmt.Errorf("phylogeny: failed to snapshot tree: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("phylogeny: failed to create snapshot file %q: %w", filePath, err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		return fmt.Errorf("phylogeny: failed to write snapshot to %q: %w", filePath, err)
	}
	return gz.Close()
}

// LoadTreeFromFile reads a gzip-compressed JSON snapshot written by
// SaveToFile and reconstructs a Tree. cfg has the same contract as in
// RestoreTree.
func LoadTreeFromFile[G Genome](filePath string, cfg Config, ops Ops[G], sink EventSink) (*Tree[G], error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("phylogeny: failed to open snapshot file %q: %w", filePath, err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("phylogeny: failed to read gzip snapshot %q: %w", filePath, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("phylogeny: failed to decompress snapshot %q: %w", filePath, err)
	}

	return RestoreTree[G](data, cfg, ops, sink)
}
