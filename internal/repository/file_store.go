package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"building_monitor/internal/logger"
	"building_monitor/internal/models"

	"github.com/gofrs/flock"
)

// FileStore keeps the state map as a JSON object
// {"<entity id>": "<RFC3339 timestamp>" | null} in a single file.
type FileStore struct {
	path string
	lock *flock.Flock
	log  *logger.Logger
}

// ErrStoreLocked is returned when another process already owns the store.
var ErrStoreLocked = errors.New("state store is locked by another process")

// NewFileStore takes an exclusive lock on <path>.lock for the lifetime of the
// store so that two schedulers never write the same file.
func NewFileStore(path string, log *logger.Logger) (*FileStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir for %q: %w", path, err)
	}
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock state file %q: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
	}
	return &FileStore{path: path, lock: lock, log: log}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (models.StateMap, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Warnw("state_file_missing", "path", s.path)
			return models.StateMap{}, nil
		}
		s.log.Warnw("state_file_unreadable", "path", s.path, "err", err)
		return models.StateMap{}, fmt.Errorf("%w: read %q: %v", models.ErrCorruptState, s.path, err)
	}

	state, err := decodeStateJSON(b)
	if err != nil {
		s.log.Warnw("state_file_corrupt", "path", s.path, "err", err)
		return models.StateMap{}, fmt.Errorf("%w: %s: %v", models.ErrCorruptState, s.path, err)
	}
	return state, nil
}

// Save writes to a temp file in the same directory, syncs it and renames it
// over the target, so readers see either the old or the new map.
func (s *FileStore) Save(_ context.Context, state models.StateMap) error {
	b, err := encodeStateJSON(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state file %q: %w", s.path, err)
	}
	syncDir(dir)
	return nil
}

// Close releases the store lock.
func (s *FileStore) Close() error {
	return s.lock.Unlock()
}

// syncDir makes the rename durable where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func encodeStateJSON(state models.StateMap) ([]byte, error) {
	out := make(map[models.EntityID]*string, len(state))
	for id, t := range state {
		if t == nil {
			out[id] = nil
			continue
		}
		v := formatTimestamp(*t)
		out[id] = &v
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return append(b, '\n'), nil
}

func decodeStateJSON(b []byte) (models.StateMap, error) {
	var raw map[models.EntityID]*string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("state document is null")
	}
	state := make(models.StateMap, len(raw))
	for id, v := range raw {
		if v == nil {
			state[id] = nil
			continue
		}
		t, err := parseTimestamp(*v)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", id, err)
		}
		state[id] = &t
	}
	return state, nil
}
