// Package persist stores fitted model state as gzipped JSON snapshots on
// disk and brings it back after restarts.
package persist

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sessionkit/wsknn/internal/engine"
)

// ErrModelFitted guards against overwriting a live model with snapshot data
// unless the caller forces the restore.
var ErrModelFitted = errors.New("cannot restore into a fitted model")

// ErrNoSnapshots reports an empty snapshot directory.
var ErrNoSnapshots = errors.New("no snapshots available")

const snapshotSuffix = ".snapshot.gz"

// snapshotVersion is bumped when the envelope layout changes.
const snapshotVersion = 1

type envelope struct {
	Version   int                 `json:"version"`
	ID        string              `json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	Settings  engine.Settings     `json:"settings"`
	Sessions  engine.SessionIndex `json:"sessions"`
	Items     engine.ItemIndex    `json:"items"`
}

// Info describes one stored snapshot.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Sessions  int       `json:"sessions"`
	Items     int       `json:"items"`
	SizeBytes int64     `json:"size_bytes"`
}

// Store reads and writes snapshots under one directory.
type Store struct {
	dir    string
	logger *logrus.Logger
}

// NewStore ensures the snapshot directory exists.
func NewStore(dir string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Save writes the engine's fitted state to a new snapshot file. The file is
// assembled under a temporary name and renamed into place, so readers never
// observe a partial snapshot.
func (s *Store) Save(eng *engine.Engine) (Info, error) {
	sessions, items, settings, err := eng.Snapshot()
	if err != nil {
		return Info{}, err
	}

	env := envelope{
		Version:   snapshotVersion,
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Settings:  settings,
		Sessions:  sessions,
		Items:     items,
	}
	name := fmt.Sprintf("model-%s-%s%s",
		env.CreatedAt.Format("20060102T150405.000000000"),
		env.ID[:8],
		snapshotSuffix)
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, "model-*.tmp")
	if err != nil {
		return Info{}, fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	if err := json.NewEncoder(gz).Encode(env); err != nil {
		tmp.Close()
		return Info{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return Info{}, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Info{}, fmt.Errorf("failed to publish snapshot: %w", err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		ID:        env.ID,
		Name:      name,
		CreatedAt: env.CreatedAt,
		Sessions:  len(sessions),
		Items:     len(items),
		SizeBytes: stat.Size(),
	}
	s.logger.WithFields(logrus.Fields{
		"snapshot": name,
		"sessions": info.Sessions,
		"items":    info.Items,
		"bytes":    info.SizeBytes,
	}).Info("Model snapshot saved")
	return info, nil
}

// Restore loads the named snapshot into the engine. A fitted engine refuses
// the restore unless force is set.
func (s *Store) Restore(eng *engine.Engine, name string, force bool) (Info, error) {
	if eng.Stats().Fitted && !force {
		return Info{}, ErrModelFitted
	}

	env, err := s.read(name)
	if err != nil {
		return Info{}, err
	}
	if err := eng.Restore(env.Sessions, env.Items, env.Settings); err != nil {
		return Info{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"snapshot": name,
		"sessions": len(env.Sessions),
		"items":    len(env.Items),
	}).Info("Model snapshot restored")
	return Info{
		ID:        env.ID,
		Name:      name,
		CreatedAt: env.CreatedAt,
		Sessions:  len(env.Sessions),
		Items:     len(env.Items),
	}, nil
}

// RestoreLatest loads the most recent snapshot into the engine.
func (s *Store) RestoreLatest(eng *engine.Engine, force bool) (Info, error) {
	infos, err := s.List()
	if err != nil {
		return Info{}, err
	}
	if len(infos) == 0 {
		return Info{}, ErrNoSnapshots
	}
	latest := infos[len(infos)-1]
	if _, err := s.Restore(eng, latest.Name, force); err != nil {
		return Info{}, err
	}
	return latest, nil
}

// List returns the stored snapshots ordered oldest first.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotSuffix) {
			continue
		}
		env, err := s.read(entry.Name())
		if err != nil {
			s.logger.WithError(err).WithField("snapshot", entry.Name()).Warn("Skipping unreadable snapshot")
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			ID:        env.ID,
			Name:      entry.Name(),
			CreatedAt: env.CreatedAt,
			Sessions:  len(env.Sessions),
			Items:     len(env.Items),
			SizeBytes: fi.Size(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos, nil
}

func (s *Store) read(name string) (envelope, error) {
	if filepath.Base(name) != name {
		return envelope{}, fmt.Errorf("invalid snapshot name %q", name)
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return envelope{}, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer gz.Close()

	var env envelope
	if err := json.NewDecoder(gz).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if env.Version != snapshotVersion {
		return envelope{}, fmt.Errorf("unsupported snapshot version %d", env.Version)
	}
	return env, nil
}
