package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"paydesk/internal/models"
)

var safeKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SessionFileRepo keeps one JSON file per session under Dir.
type SessionFileRepo struct {
	Dir string
}

func NewSessionFileRepo(dir string) (*SessionFileRepo, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &SessionFileRepo{Dir: dir}, nil
}

func (r *SessionFileRepo) path(key string) (string, error) {
	if !safeKey.MatchString(key) {
		return "", fmt.Errorf("invalid session key %q", key)
	}
	return filepath.Join(r.Dir, key+".json"), nil
}

func (r *SessionFileRepo) Load(ctx context.Context, key string) (models.SessionSnapshot, error) {
	var snap models.SessionSnapshot
	p, err := r.path(key)
	if err != nil {
		return snap, err
	}
	raw, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return snap, models.ErrNoRecord
	}
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("decode session %s: %w", key, err)
	}
	return snap, nil
}

// Save writes to a temp file first and renames it into place.
func (r *SessionFileRepo) Save(ctx context.Context, key string, snap models.SessionSnapshot) error {
	p, err := r.path(key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(r.Dir, key+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (r *SessionFileRepo) Delete(ctx context.Context, key string) error {
	p, err := r.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
