package diskcache

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileSystem is the narrow filesystem abstraction the disk cache depends
// on (spec.md §6), so tests can swap in an in-memory fake without
// touching a real disk.
type FileSystem interface {
	// OpenRead opens path for reading.
	OpenRead(path string) (io.ReadCloser, error)

	// Delete removes the file at path. tmpDir is passed through so
	// implementations can sanity-check the path is theirs.
	Delete(path, tmpDir string) error

	// WriteAtomic creates a fresh uniquely-named file under tmpDir,
	// invokes write on its stream, closes it durably, and returns its
	// path. Implementations may retry on name collisions.
	WriteAtomic(ctx context.Context, tmpDir string, write func(io.Writer) error) (path string, err error)

	// DirectoryCreate ensures dir exists.
	DirectoryCreate(dir string) error

	// DirectoryReCreate removes dir (if present) and recreates it empty.
	DirectoryReCreate(dir string) error

	// DirectoryGetFiles lists the regular files directly inside dir.
	DirectoryGetFiles(dir string) ([]string, error)
}

// OSFileSystem is the real FileSystem, backed by the local disk.
type OSFileSystem struct{}

// OpenRead implements FileSystem.
func (OSFileSystem) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Delete implements FileSystem.
func (OSFileSystem) Delete(path, tmpDir string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// WriteAtomic implements FileSystem. The temp file's name is the
// entry's permanent content address; it is never renamed.
func (OSFileSystem) WriteAtomic(ctx context.Context, tmpDir string, write func(io.Writer) error) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		path := filepath.Join(tmpDir, uuid.NewString())
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", err
		}

		if werr := write(f); werr != nil {
			f.Close()
			os.Remove(path)
			return "", werr
		}
		if serr := f.Sync(); serr != nil {
			f.Close()
			os.Remove(path)
			return "", serr
		}
		if cerr := f.Close(); cerr != nil {
			os.Remove(path)
			return "", cerr
		}
		return path, nil
	}
}

// DirectoryCreate implements FileSystem.
func (OSFileSystem) DirectoryCreate(dir string) error {
	return os.MkdirAll(dir, 0o700)
}

// DirectoryReCreate implements FileSystem.
func (OSFileSystem) DirectoryReCreate(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// DirectoryGetFiles implements FileSystem.
func (OSFileSystem) DirectoryGetFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(ents))
	for _, e := range ents {
		if !e.IsDir() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}
