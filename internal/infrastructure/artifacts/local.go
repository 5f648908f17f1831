// Package artifacts moves diagnostic outputs from scratch space into permanent
// result storage.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/skoriche/Climate-REF4CMIP-sub000/internal/ports"
)

var _ ports.ArtifactStore = (*LocalStore)(nil)

// LocalStore copies artifacts between two directories on the same host.
type LocalStore struct {
	scratchDir string
	resultsDir string
}

// NewLocalStore builds a store reading from scratchDir and writing to resultsDir.
func NewLocalStore(scratchDir, resultsDir string) *LocalStore {
	return &LocalStore{scratchDir: scratchDir, resultsDir: resultsDir}
}

// Relocate copies one file of fragment into the results directory. The copy is
// written to a temporary file and renamed into place so readers never see a
// partial file.
func (s *LocalStore) Relocate(ctx context.Context, fragment, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := filepath.Join(s.scratchDir, filepath.FromSlash(fragment), filename)
	dst := filepath.Join(s.Location(fragment), filename)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("relocate %s: %w", filename, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create results directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".relocate-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("copy %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		cleanup()
		return fmt.Errorf("move %s into place: %w", filename, err)
	}
	return nil
}

// Location is the results directory of fragment.
func (s *LocalStore) Location(fragment string) string {
	return filepath.Join(s.resultsDir, filepath.FromSlash(fragment))
}

// Remove deletes the scratch and results directories of fragment.
func (s *LocalStore) Remove(_ context.Context, fragment string) error {
	for _, dir := range []string{filepath.Join(s.scratchDir, filepath.FromSlash(fragment)), s.Location(fragment)} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	return nil
}
