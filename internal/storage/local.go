// Package storage manages the upload directory tree on the local
// filesystem. Stored paths are public and relative ("uploads/apps/<id>/icon.png");
// the static file server exposes the tree under the same prefix.
package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// PublicPrefix is the first segment of every stored path.
const PublicPrefix = "uploads"

const (
	tempDir        = "temp"
	iconsDir       = "icons"
	appsDir        = "apps"
	screenshotsDir = "screenshots"
)

type Local struct {
	root string
}

// NewLocal creates the root together with its staging and app directories.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		root = "./uploads"
	}
	for _, dir := range []string{root, filepath.Join(root, tempDir), filepath.Join(root, iconsDir), filepath.Join(root, appsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &Local{root: root}, nil
}

func (s *Local) Root() string { return s.root }

// TempDir stages app packages.
func (s *Local) TempDir() string { return filepath.Join(s.root, tempDir) }

// IconsDir stages images.
func (s *Local) IconsDir() string { return filepath.Join(s.root, iconsDir) }

func (s *Local) AppDir(appID string) string {
	return filepath.Join(s.root, appsDir, filepath.Base(appID))
}

// CreateAppDir makes apps/<id> and its screenshots subdirectory.
func (s *Local) CreateAppDir(appID string) (string, error) {
	dir := s.AppDir(appID)
	if err := os.MkdirAll(filepath.Join(dir, screenshotsDir), 0o755); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}
	return dir, nil
}

// DeleteAppDir removes the whole app tree. A missing tree is not an error.
func (s *Local) DeleteAppDir(appID string) error {
	if err := os.RemoveAll(s.AppDir(appID)); err != nil {
		return fmt.Errorf("failed to delete app directory: %w", err)
	}
	return nil
}

// AppFile returns the stored path of name inside the app tree.
func AppFile(appID, name string) string {
	return path.Join(PublicPrefix, appsDir, appID, name)
}

// Screenshot returns the stored path of the n-th screenshot (1-based).
func Screenshot(appID string, n int, ext string) string {
	return AppFile(appID, path.Join(screenshotsDir, fmt.Sprintf("screenshot-%d%s", n, ext)))
}

// Place moves a staged file to a stored path and returns its size.
func (s *Local) Place(src, stored string) (int64, error) {
	dst, err := s.Resolve(stored)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return 0, fmt.Errorf("failed to move file: %w", err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to get file info: %w", err)
	}
	return info.Size(), nil
}

// Resolve maps a stored path onto the filesystem, refusing paths that
// escape the root.
func (s *Local) Resolve(stored string) (string, error) {
	clean := path.Clean("/" + strings.TrimPrefix(filepath.ToSlash(stored), "./"))
	clean = strings.TrimPrefix(clean, "/")
	rel := strings.TrimPrefix(clean, PublicPrefix+"/")
	if rel == clean || rel == "" {
		return "", fmt.Errorf("path %q is outside the upload tree", stored)
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

// Stat reports the size of a stored file. The error wraps fs.ErrNotExist
// when the file is gone.
func (s *Local) Stat(stored string) (os.FileInfo, error) {
	p, err := s.Resolve(stored)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}
