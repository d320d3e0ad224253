package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileStore keeps every collection in <dir>/<collection>.json. Writes go to a
// temp file that is renamed over the original, so readers never observe a
// partial file.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create data directory %s", dir)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.RWMutex)}, nil
}

func (s *FileStore) lock(collection string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[collection]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[collection] = l
	}
	return l
}

func (s *FileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func (s *FileStore) ReadAll(_ context.Context, collection string) ([]byte, error) {
	l := s.lock(collection)
	l.RLock()
	defer l.RUnlock()
	return s.read(collection)
}

func (s *FileStore) WriteAll(_ context.Context, collection string, data []byte) error {
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()
	return s.write(collection, data)
}

func (s *FileStore) Update(ctx context.Context, collection string, fn func([]byte) ([]byte, error)) error {
	l := s.lock(collection)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := s.read(collection)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.write(collection, next)
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read(collection string) ([]byte, error) {
	data, err := os.ReadFile(s.path(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return emptyCollection, nil
		}
		return nil, errors.Wrapf(err, "read collection %s", collection)
	}
	return data, nil
}

func (s *FileStore) write(collection string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", collection)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write collection %s", collection)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync collection %s", collection)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close collection %s", collection)
	}
	if err := os.Rename(tmp.Name(), s.path(collection)); err != nil {
		return errors.Wrapf(err, "replace collection %s", collection)
	}
	return nil
}
