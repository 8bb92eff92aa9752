package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/frederic-klein/yapp/internal/dist"
)

const fileMode = 0o644

// Writer persists rendered manifests.
type Writer struct {
	fs afero.Fs
}

// NewWriter creates a writer on fs.
func NewWriter(fs afero.Fs) *Writer {
	return &Writer{fs: fs}
}

// Write renders pkg and replaces dir/pyproject.toml with it. It returns the
// path written.
func (w *Writer) Write(dir string, pkg *dist.ProjectPackage) (string, error) {
	data, err := Render(pkg)
	if err != nil {
		return "", err
	}

	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}

	path := filepath.Join(dir, FileName)

	// Write to temp file first, then rename
	tmp, err := afero.TempFile(w.fs, dir, ".pyproject-*.toml")
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = w.fs.Chmod(tmpPath, fileMode)
	}
	if err != nil {
		_ = w.fs.Remove(tmpPath)
		return "", fmt.Errorf("writing manifest: %w", err)
	}

	if err := w.fs.Rename(tmpPath, path); err != nil {
		_ = w.fs.Remove(tmpPath)
		return "", fmt.Errorf("renaming manifest: %w", err)
	}

	return path, nil
}
