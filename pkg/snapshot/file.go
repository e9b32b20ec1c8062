package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
)

// FileStore keeps one JSON file per username in a directory. Snapshots
// can always be recomputed, so the default home is the user cache dir.
type FileStore struct {
	dir string
	mu  sync.Mutex
	log logger.Logger
}

func NewFileStore(dir string, log logger.Logger) (*FileStore, error) {
	if dir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("locate cache directory: %w", err)
		}
		dir = filepath.Join(cache, "flickrheat", "snapshots")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &FileStore{dir: dir, log: log}, nil
}

func (f *FileStore) Dir() string { return f.dir }

// path hex-encodes the key since usernames may hold any character
func (f *FileStore) path(username string) string {
	return filepath.Join(f.dir, fmt.Sprintf("%x.snapshot.json", Key(username)))
}

func (f *FileStore) Put(ctx context.Context, s Snapshot) (err error) {
	defer func() { observe("file", "put", err) }()

	if err := s.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Username = Key(s.Username)
	body, err := encode(s)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	target := f.path(s.Username)
	if err := replaceFile(target, body); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", s.Username, err)
	}

	f.log.DebugWithFields("snapshot saved", map[string]interface{}{
		"username": s.Username,
		"year":     s.Year,
		"path":     target,
	})
	return nil
}

// replaceFile swaps body in at target through a synced temp file in the
// same directory, so readers see the old or the new file and never a part.
func replaceFile(target string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".snapshot-*")
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(body); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return err
	}
	committed = true
	return nil
}

func (f *FileStore) Get(ctx context.Context, username string) (s Snapshot, err error) {
	defer func() { observe("file", "get", err) }()

	if Key(username) == "" {
		return Snapshot{}, apperrors.Validation("snapshot username is required")
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	body, err := os.ReadFile(f.path(username))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Snapshot{}, ErrNotFound
	case err != nil:
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return decode(body)
}

// Delete drops the snapshot for username; a missing one is fine
func (f *FileStore) Delete(username string) error {
	err := os.Remove(f.path(username))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }
