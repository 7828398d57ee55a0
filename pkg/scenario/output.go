package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// WriteOutcome writes the extended series of an accepted outcome to dir and
// returns the written path. The file is written to a temporary name first and
// renamed into place.
func WriteOutcome(dir string, o Outcome) (string, error) {
	if o.Status != StatusAccepted || o.Extended == nil {
		return "", fmt.Errorf("station %d of %s has no accepted analog", o.Station, o.Source)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, o.FileName())
	if err := flows.WriteFile(path, flows.Tabularize(o.Extended)); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// WriteFileResult writes every accepted outcome of a file.
func WriteFileResult(dir string, res FileResult) ([]string, error) {
	var (
		paths []string
		errs  []error
	)
	for _, o := range res.Accepted() {
		path, err := WriteOutcome(dir, o)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}
