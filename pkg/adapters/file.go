package adapters

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/HatiCode/analogflow/pkg/flows"
)

// FileAdapter discovers flow files under a directory tree.
//
// Every regular file whose base name matches Pattern is parsed with the
// fixed-width flow codec. Files are visited in lexical path order. The source
// name is the path relative to Root without its extension, passed through
// CleanName, so "seg 21.11/VAZOES.txt" becomes "seg_21.11_VAZOES".
// A file that does not parse is returned with Source.Err set.
type FileAdapter struct {
	// Root is the directory to walk (required).
	Root string

	// Pattern is a filepath.Match pattern applied to base names.
	// Defaults to "*.txt".
	Pattern string
}

func (f *FileAdapter) Name() string { return "file" }

// Collect implements Adapter.
func (f *FileAdapter) Collect(ctx context.Context) ([]Source, error) {
	if f.Root == "" {
		return nil, errors.New("file adapter: Root is required")
	}
	pattern := f.Pattern
	if pattern == "" {
		pattern = "*.txt"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("file adapter: invalid pattern %q: %w", pattern, err)
	}

	var sources []Source
	err := filepath.WalkDir(f.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}

		name, err := sourceName(f.Root, path)
		if err != nil {
			return err
		}

		table, err := flows.ReadFile(path)
		if errors.Is(err, flows.ErrData) {
			sources = append(sources, Source{Name: name, Err: err})
			return nil
		}
		if err != nil {
			return err
		}
		sources = append(sources, Source{Name: name, Table: table})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", f.Root, err)
	}

	return sources, nil
}

func sourceName(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return CleanName(filepath.ToSlash(rel)), nil
}
