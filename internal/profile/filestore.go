package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists profiles. Implementations own their storage format.
type Store interface {
	// List returns every profile, newest first.
	List(ctx context.Context) ([]Profile, error)
	// Get looks up a profile; ok is false when the id is unknown.
	Get(ctx context.Context, id string) (p Profile, ok bool, err error)
	// Upsert inserts or overwrites the profile keyed by its id.
	Upsert(ctx context.Context, p Profile) (Profile, error)
	// Update rewrites an existing profile only while its updatedAt still
	// equals expect. It never inserts; ok is false when the profile is gone
	// or was changed in the meantime.
	Update(ctx context.Context, p Profile, expect time.Time) (rec Profile, ok bool, err error)
	// Delete removes the profile and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
}

// FileStore keeps the whole collection as one JSON array on disk. Every
// mutation rewrites the file. The mutex serializes read-modify-write cycles
// within this process only; a second process writing the same file races and
// the later write wins.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// OpenFileStore prepares path for use, creating its directory and an empty
// collection when the file does not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = filepath.Join("data", "users.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storageErr("create data dir", err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, storageErr("initialize data file", err)
		}
	} else if err != nil {
		return nil, storageErr("stat data file", err)
	}
	return &FileStore{path: path, now: time.Now}, nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) List(ctx context.Context) ([]Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles, err := s.read()
	if err != nil {
		return nil, err
	}
	sortNewestFirst(profiles)
	return profiles, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (Profile, bool, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles, err := s.read()
	if err != nil {
		return Profile{}, false, err
	}
	if i := indexOf(profiles, id); i >= 0 {
		return profiles[i], true, nil
	}
	return Profile{}, false, nil
}

func (s *FileStore) Upsert(ctx context.Context, p Profile) (Profile, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles, err := s.read()
	if err != nil {
		return Profile{}, err
	}
	next, rec, _ := apply(profiles, planUpsert(profiles, p), s.now())
	if err := s.write(next); err != nil {
		return Profile{}, err
	}
	return rec, nil
}

func (s *FileStore) Update(ctx context.Context, p Profile, expect time.Time) (Profile, bool, error) {
	if err := ctx.Err(); err != nil {
		return Profile{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles, err := s.read()
	if err != nil {
		return Profile{}, false, err
	}
	i := indexOf(profiles, p.ID)
	if i < 0 || !profiles[i].UpdatedAt.Equal(expect) {
		return Profile{}, false, nil
	}
	next, rec, _ := apply(profiles, Op{Kind: OpUpdate, Profile: p}, s.now())
	if err := s.write(next); err != nil {
		return Profile{}, false, err
	}
	return rec, true, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	profiles, err := s.read()
	if err != nil {
		return false, err
	}
	next, _, ok := apply(profiles, Op{Kind: OpDelete, ID: id}, s.now())
	if !ok {
		return false, nil
	}
	if err := s.write(next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) read() ([]Profile, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Profile{}, nil
	}
	if err != nil {
		return nil, storageErr("read data file", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []Profile{}, nil
	}
	var records []storedProfile
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, storageErr(fmt.Sprintf("parse %s", filepath.Base(s.path)), err)
	}
	profiles := make([]Profile, 0, len(records))
	for _, rec := range records {
		profiles = append(profiles, rec.profile())
	}
	return profiles, nil
}

// write replaces the file through a rename so readers never observe a
// half-written collection.
func (s *FileStore) write(profiles []Profile) error {
	raw, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return storageErr("encode profiles", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".users-*.json")
	if err != nil {
		return storageErr("create temp file", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return storageErr("chmod temp file", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return storageErr("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return storageErr("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return storageErr("close temp file", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return storageErr("replace data file", err)
	}
	return nil
}
