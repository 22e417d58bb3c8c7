package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

const (
	ArtifactJSON     = "json"
	ArtifactMarkdown = "md"
	ArtifactPDF      = "pdf"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// ArtifactStore writes <id>.<kind> files under one directory.
type ArtifactStore struct {
	dir string
}

func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &ArtifactStore{dir: dir}, nil
}

func (a *ArtifactStore) Path(id, kind string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("invalid report id %q", id)
	}
	switch kind {
	case ArtifactJSON, ArtifactMarkdown, ArtifactPDF:
	default:
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}
	return filepath.Join(a.dir, id+"."+kind), nil
}

func (a *ArtifactStore) Write(id, kind string, blob []byte) (string, error) {
	path, err := a.Path(id, kind)
	if err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", err
	}
	return path, nil
}

func (a *ArtifactStore) Read(id, kind string) ([]byte, error) {
	path, err := a.Path(id, kind)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return blob, err
}

// Remove deletes every artifact kind for id. Missing files are not an error.
func (a *ArtifactStore) Remove(id string) error {
	var errs []error
	for _, kind := range []string{ArtifactJSON, ArtifactMarkdown, ArtifactPDF} {
		path, err := a.Path(id, kind)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
