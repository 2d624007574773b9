package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink writes exports below a local directory.
type FileSink struct {
	Dir string
}

func (f FileSink) Location(name string) string {
	return filepath.Join(f.Dir, filepath.FromSlash(name))
}

// Create writes to a temporary file next to the target; Commit renames it
// into place.
func (f FileSink) Create(_ context.Context, name string) (Object, error) {
	path := f.Location(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	return &fileObject{File: tmp, path: path}, nil
}

type fileObject struct {
	*os.File
	path string
}

func (o *fileObject) Commit() error {
	if err := o.File.Close(); err != nil {
		os.Remove(o.File.Name())
		return err
	}
	return os.Rename(o.File.Name(), o.path)
}

func (o *fileObject) Abort() {
	o.File.Close()
	os.Remove(o.File.Name())
}
