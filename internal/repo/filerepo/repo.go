package filerepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/milad/metermon/internal/repo"
)

var _ repo.CountStore = (*Repo)(nil)

// Repo keeps the pulse count in a single file as decimal ASCII.
type Repo struct {
	path string
}

func New(path string) *Repo {
	return &Repo{path: path}
}

func (r *Repo) Path() string { return r.path }

func (r *Repo) Load(ctx context.Context) (uint64, error) {
	_ = ctx // file I/O here is short and not cancellable

	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("read %q: %w", r.path, repo.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read %q: %w", r.path, err)
	}
	n, err := repo.ParseCount(raw)
	if err != nil {
		return 0, fmt.Errorf("read %q: %w", r.path, err)
	}
	return n, nil
}

// Save writes a sibling temp file, syncs it and renames it over the target,
// so a crash mid-write leaves either the old or the new count.
func (r *Repo) Save(ctx context.Context, count uint64) error {
	_ = ctx

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp in %q: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(repo.FormatCount(count)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %q: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %q: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %q: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("rename to %q: %w", r.path, err)
	}
	return nil
}
