package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/models"
)

const manifestFile = "manifest.json"

type manifest struct {
	Location    models.Location `json:"location"`
	CollectedAt time.Time       `json:"collected_at"`
	Files       []manifestEntry `json:"files"`
}

type manifestEntry struct {
	Name   string             `json:"name"`
	File   string             `json:"file"`
	Kind   models.PayloadKind `json:"kind"`
	Tier   string             `json:"tier"`
	Units  models.Units       `json:"units,omitempty"`
	Bytes  int                `json:"bytes"`
	SHA256 string             `json:"sha256"`
}

// FileStore keeps artifacts as directories:
// <root>/<location-key>/<YYYYMMDDTHHMMSSZ>/{current.json,forecast.json,manifest.json}.
// A directory is staged under a temporary name and renamed into place.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup dir %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) Save(ctx context.Context, a *Artifact) (string, error) {
	if err := validate(a); err != nil {
		return "", err
	}
	ref := Key(a.Location, a.CollectedAt)
	final := filepath.Join(s.root, filepath.FromSlash(ref))

	if _, err := os.Stat(final); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, ref)
	}

	parent := filepath.Dir(final)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp(parent, ".tmp-")
	if err != nil {
		return "", err
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(tmp)
		}
	}()

	m := manifest{Location: a.Location, CollectedAt: a.CollectedAt.UTC()}
	for _, np := range a.payloads() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := np.name + ".json"
		if err := writeSynced(filepath.Join(tmp, name), np.payload.Body); err != nil {
			return "", err
		}
		m.Files = append(m.Files, manifestEntry{
			Name:   np.name,
			File:   name,
			Kind:   np.payload.Kind,
			Tier:   np.payload.Tier,
			Units:  np.payload.Units,
			Bytes:  len(np.payload.Body),
			SHA256: checksum(np.payload.Body),
		})
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	if err := writeSynced(filepath.Join(tmp, manifestFile), data); err != nil {
		return "", err
	}

	if err := os.Rename(tmp, final); err != nil {
		if _, statErr := os.Stat(final); statErr == nil {
			return "", fmt.Errorf("%w: %s", ErrExists, ref)
		}
		return "", fmt.Errorf("publishing artifact %s: %w", ref, err)
	}
	committed = true

	a.Ref = ref
	return ref, nil
}

// Load accepts a ref relative to the store root or a path to an artifact directory.
func (s *FileStore) Load(ctx context.Context, ref string) (*Artifact, error) {
	dir := ref
	if !filepath.IsAbs(ref) {
		dir = filepath.Join(s.root, filepath.FromSlash(ref))
	}
	a, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	a.Ref = ref
	return a, nil
}

// LoadDir reads an artifact directory written by a FileStore, verifying checksums.
func LoadDir(dir string) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
	}
	if err != nil {
		return nil, err
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("reading manifest in %s: %w", dir, err)
	}

	a := &Artifact{Ref: dir, Location: m.Location, CollectedAt: m.CollectedAt}
	for _, f := range m.Files {
		body, err := os.ReadFile(filepath.Join(dir, f.File))
		if err != nil {
			return nil, err
		}
		if checksum(body) != f.SHA256 {
			return nil, fmt.Errorf("%w: %s/%s", ErrCorrupt, dir, f.File)
		}
		p := &models.Payload{Kind: f.Kind, Tier: f.Tier, Units: f.Units, Body: body}
		if err := a.set(f.Name, p); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// IsArtifactDir reports whether path is a directory holding a manifest.
func IsArtifactDir(path string) bool {
	_, err := os.Stat(filepath.Join(path, manifestFile))
	return err == nil
}

// List returns refs for a location, oldest first.
func (s *FileStore) List(ctx context.Context, loc models.Location) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, loc.Key()))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var refs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		refs = append(refs, loc.Key()+"/"+e.Name())
	}
	sort.Strings(refs)
	return refs, nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o444)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
