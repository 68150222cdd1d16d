// Package kvstore is the embedded single-writer key-value layer the
// filesystem object-store provider stacks object/version document rows
// on, replacing the original's SQLite-backed DocumentStore
// (original_source/x8/storage/object_store/providers/file_system.py:
// "db = DocumentStore(... __provider__=SQLite(...))"). No embedded kv
// library exists anywhere in the corpus, so this is built directly on
// afero.Fs (matching pkg/containerizer's afero idiom) with one file per
// row and an in-process mutex serializing writers per collection; an
// fsnotify watch lets callers learn about rows changed by another
// process sharing the same store directory, mirroring the original's
// need to detect out-of-band file writes under the store path.
package kvstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/x8labs/cloudcore/pkg/apierr"
)

// Row is one stored record. Etag is content-addressed so CompareAndSwap
// can detect concurrent writers without a separate version counter.
type Row struct {
	Key   string
	Value []byte
	Etag  string
}

func etagOf(value []byte) string {
	sum := sha256.Sum256(value)
	return hex.EncodeToString(sum[:8])
}

// Store is a directory of collections, each a directory of one-file-per-key
// rows, guarded by a per-collection mutex for single-writer serialization.
type Store struct {
	fs   afero.Fs
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open roots a Store at dir using fs (afero.NewOsFs() in production,
// afero.NewMemMapFs() in tests).
func Open(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, root: dir, locks: map[string]*sync.Mutex{}}
}

func (s *Store) collectionLock(collection string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[collection]
	if !ok {
		l = &sync.Mutex{}
		s.locks[collection] = l
	}
	return l
}

func (s *Store) collectionDir(collection string) string {
	return filepath.Join(s.root, collection)
}

func (s *Store) rowPath(collection, key string) string {
	return filepath.Join(s.collectionDir(collection), encodeKey(key))
}

// encodeKey maps an arbitrary row key to a filesystem-safe name; '/' would
// otherwise be read as a path separator.
func encodeKey(key string) string {
	return hex.EncodeToString([]byte(key))
}

// CreateCollection makes the backing directory for collection, returning
// true if it was created and false if it already existed.
func (s *Store) CreateCollection(collection string) (bool, error) {
	dir := s.collectionDir(collection)
	if exists, err := afero.DirExists(s.fs, dir); err != nil {
		return false, err
	} else if exists {
		return false, nil
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return false, apierr.Wrap(apierr.KindBadRequest, err, "create collection %q", collection)
	}
	return true, nil
}

// DropCollection removes collection and everything under it.
func (s *Store) DropCollection(collection string) (bool, error) {
	dir := s.collectionDir(collection)
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return false, apierr.Wrap(apierr.KindBadRequest, err, "drop collection %q", collection)
	}
	return true, nil
}

// HasCollection reports whether collection's directory exists.
func (s *Store) HasCollection(collection string) (bool, error) {
	return afero.DirExists(s.fs, s.collectionDir(collection))
}

// ListCollections returns every collection directory name under root.
func (s *Store) ListCollections() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Get reads a row by key. It reports apierr.KindNotFound if the row is
// absent.
func (s *Store) Get(collection, key string) (Row, error) {
	data, err := afero.ReadFile(s.fs, s.rowPath(collection, key))
	if err != nil {
		if os.IsNotExist(err) {
			return Row{}, apierr.New(apierr.KindNotFound, "key %q not found in collection %q", key, collection)
		}
		return Row{}, err
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return Row{}, apierr.Wrap(apierr.KindBadRequest, err, "decode row %q", key)
	}
	return row, nil
}

// Put writes key unconditionally and returns the new row's etag.
func (s *Store) Put(collection, key string, value []byte) (string, error) {
	lock := s.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()
	return s.putLocked(collection, key, value)
}

func (s *Store) putLocked(collection, key string, value []byte) (string, error) {
	if _, err := s.CreateCollection(collection); err != nil {
		return "", err
	}
	row := Row{Key: key, Value: value, Etag: etagOf(value)}
	data, err := json.Marshal(row)
	if err != nil {
		return "", err
	}
	if err := afero.WriteFile(s.fs, s.rowPath(collection, key), data, 0o644); err != nil {
		return "", apierr.Wrap(apierr.KindBadRequest, err, "write row %q", key)
	}
	return row.Etag, nil
}

// CompareAndSwap writes key only if its current etag equals expectEtag
// ("" meaning "must not yet exist"). It reports apierr.KindPreconditionFailed
// on mismatch, matching the filesystem provider's optimistic-concurrency
// needs for If-Match-style preconditions.
func (s *Store) CompareAndSwap(collection, key string, expectEtag string, value []byte) (string, error) {
	lock := s.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.Get(collection, key)
	switch {
	case err == nil:
		if expectEtag == "" {
			return "", apierr.New(apierr.KindPreconditionFailed, "key %q already exists", key)
		}
		if current.Etag != expectEtag {
			return "", apierr.New(apierr.KindPreconditionFailed, "key %q etag mismatch", key)
		}
	case apierr.Is(err, apierr.KindNotFound):
		if expectEtag != "" {
			return "", apierr.New(apierr.KindPreconditionFailed, "key %q does not exist", key)
		}
	default:
		return "", err
	}
	return s.putLocked(collection, key, value)
}

// Delete removes key. It is a no-op (no error) if the key is already
// absent, matching the idempotent-delete contract the providers lean on.
func (s *Store) Delete(collection, key string) error {
	lock := s.collectionLock(collection)
	lock.Lock()
	defer lock.Unlock()

	if err := s.fs.Remove(s.rowPath(collection, key)); err != nil && !os.IsNotExist(err) {
		return apierr.Wrap(apierr.KindBadRequest, err, "delete row %q", key)
	}
	return nil
}

// List returns every row whose key has the given prefix, lexicographically
// ascending by key, matching the object-store's fixed listing order
// (spec.md §4.2).
func (s *Store) List(collection, prefix string) ([]Row, error) {
	dir := s.collectionDir(collection)
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var rows []Row
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := afero.ReadFile(s.fs, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var row Row
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, fmt.Errorf("kvstore: decode %q: %w", e.Name(), err)
		}
		if prefix == "" || len(row.Key) >= len(prefix) && row.Key[:len(prefix)] == prefix {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Watch reports changes made to collection's directory from outside this
// Store (another process sharing the same root). It is best-effort: on an
// in-memory filesystem (tests) it returns a closed, empty channel since
// fsnotify cannot watch a virtual fs.
func (s *Store) Watch(collection string) (<-chan fsnotify.Event, func() error, error) {
	if _, ok := s.fs.(*afero.MemMapFs); ok {
		ch := make(chan fsnotify.Event)
		close(ch)
		return ch, func() error { return nil }, nil
	}
	if _, err := s.CreateCollection(collection); err != nil {
		return nil, nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.KindBadRequest, err, "create watcher for %q", collection)
	}
	if err := watcher.Add(s.collectionDir(collection)); err != nil {
		watcher.Close()
		return nil, nil, apierr.Wrap(apierr.KindBadRequest, err, "watch collection %q", collection)
	}
	return watcher.Events, watcher.Close, nil
}
