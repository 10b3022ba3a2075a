package internal

import (
	"encoding/hex"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const partitionPrefix = "part-"

// Workspace is the directory holding the partition files of one run.
// Keys are hex encoded in file names, so any key is a safe name.
type Workspace struct {
	fs    afero.Fs
	dir   string
	owned bool
}

// NewWorkspace uses dir, creating it if needed. An empty dir means a
// fresh temporary directory that Cleanup removes again.
func NewWorkspace(fs afero.Fs, dir string) (*Workspace, error) {
	if dir == "" {
		d, err := afero.TempDir(fs, "", "ipagg-")
		if err != nil {
			return nil, errors.Wrapf(ErrFileSystem, "create temp dir: %v", err)
		}
		return &Workspace{fs: fs, dir: d, owned: true}, nil
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(ErrFileSystem, "create %s: %v", dir, err)
	}
	return &Workspace{fs: fs, dir: dir}, nil
}

func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) PartitionPath(key, ext string) string {
	return filepath.Join(w.dir, partitionPrefix+hex.EncodeToString([]byte(key))+ext)
}

// Partitions lists the keys of the partition files present, sorted.
func (w *Workspace) Partitions(ext string) ([]string, error) {
	infos, err := afero.ReadDir(w.fs, w.dir)
	if err != nil {
		return nil, errors.Wrapf(ErrFileSystem, "list %s: %v", w.dir, err)
	}
	var keys []string
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || !strings.HasPrefix(name, partitionPrefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSuffix(strings.TrimPrefix(name, partitionPrefix), ext))
		if err != nil {
			continue
		}
		keys = append(keys, string(raw))
	}
	sort.Strings(keys)
	return keys, nil
}

func (w *Workspace) Remove(key, ext string) error {
	path := w.PartitionPath(key, ext)
	if err := w.fs.Remove(path); err != nil {
		return errors.Wrapf(ErrFileSystem, "remove %s: %v", path, err)
	}
	return nil
}

// Cleanup removes a temporary workspace once it is empty. Directories
// supplied by the caller are never removed.
func (w *Workspace) Cleanup() error {
	if !w.owned {
		return nil
	}
	empty, err := afero.IsEmpty(w.fs, w.dir)
	if err != nil {
		return errors.Wrapf(ErrFileSystem, "stat %s: %v", w.dir, err)
	}
	if !empty {
		return nil
	}
	if err := w.fs.Remove(w.dir); err != nil {
		return errors.Wrapf(ErrFileSystem, "remove %s: %v", w.dir, err)
	}
	return nil
}
