// Package scaffold lays down the empty files a new tutorchat deployment
// expects next to the binary.
package scaffold

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFiles are created when no explicit list is given.
var DefaultFiles = []string{
	".env",
	".gitignore",
	"secrets.toml",
	"README.md",
}

// Result records what happened to each requested file.
type Result struct {
	Created []string
	Skipped []string
	Failed  map[string]error
}

// Err joins every per-file failure, or returns nil.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for name, err := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errors.Join(errs...)
}

// Create makes baseDir if needed and creates each file in it empty.
// Existing files are never touched. A failure on one file does not stop
// the others.
func Create(baseDir string, files []string) (*Result, error) {
	if len(files) == 0 {
		files = DefaultFiles
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", baseDir, err)
	}

	res := &Result{Failed: make(map[string]error)}
	for _, name := range files {
		path := filepath.Join(baseDir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		switch {
		case errors.Is(err, fs.ErrExist):
			res.Skipped = append(res.Skipped, path)
		case err != nil:
			res.Failed[path] = err
		default:
			f.Close()
			res.Created = append(res.Created, path)
		}
	}
	return res, nil
}
