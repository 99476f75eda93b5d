// Package vfs serves directory listings and file contents to workers from a
// single root directory.
package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotFound is returned by ReadFile when name does not refer to a regular
// file inside the root, or the file exceeds the size limit.
var ErrNotFound = errors.New("file not found")

// Lister produces the entry names of the served directory.
type Lister interface {
	ListDirectory(ctx context.Context) ([]string, error)
}

// Reader returns the contents of a named file.
type Reader interface {
	ReadFile(ctx context.Context, name string, limit int64) ([]byte, error)
}

// Source is a Lister and Reader backed by an afero filesystem.
type Source struct {
	fs afero.Fs
}

// New returns a Source serving the root of fsys.
func New(fsys afero.Fs) *Source {
	return &Source{fs: fsys}
}

// NewOS returns a Source serving root on the host filesystem. Paths are
// confined to root.
func NewOS(root string) (*Source, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), abs)), nil
}

// ListDirectory returns the names of the root's entries in lexical order,
// skipping hidden entries (those starting with '.').
func (s *Source) ListDirectory(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return nil, fmt.Errorf("list directory: %w", err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasPrefix(info.Name(), ".") {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ReadFile returns the contents of name. Names are resolved relative to the
// root; names that escape it, directories, missing files and files larger
// than a positive limit all report ErrNotFound.
func (s *Source) ReadFile(ctx context.Context, name string, limit int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, ok := cleanName(name)
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}

	f, err := s.fs.Open(clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, os.ErrInvalid) {
			return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%q is not a regular file: %w", name, ErrNotFound)
	}
	if limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%q is %d bytes, limit %d: %w", name, info.Size(), limit, ErrNotFound)
	}

	// Bound the read as well, the file may grow after Stat.
	r := io.Reader(f)
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%q grew past limit %d: %w", name, limit, ErrNotFound)
	}
	return data, nil
}

// cleanName maps a requested name to a rooted slash path. Empty names and
// names that climb above the root are rejected.
func cleanName(name string) (string, bool) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", false
	}
	name = filepath.ToSlash(name)
	if strings.HasPrefix(name, "/") {
		return "", false
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return "/" + clean, true
}
