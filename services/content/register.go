package contentsvc

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

// Register parses the manifest of the package extracted at basePath and stores it for courseID.
func (s *LocalStore) Register(ctx context.Context, w scorm.PackageWriter, courseID, basePath string) (scorm.ContentPackage, []scorm.ContentUnit, error) {
	base, err := scorm.ContentPath(basePath)
	if err != nil {
		return scorm.ContentPackage{}, nil, errors.Wrap(err, "base path")
	}

	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(base), scorm.ManifestName))
	if err != nil {
		return scorm.ContentPackage{}, nil, errors.Wrap(err, "opening manifest")
	}
	defer func() { _ = f.Close() }()

	pkg, units, err := scorm.ParseManifest(f, courseID, base)
	if err != nil {
		return scorm.ContentPackage{}, nil, errors.Wrapf(err, "parsing manifest of %s", base)
	}
	if pkg, err = w.CreatePackage(ctx, pkg, units); err != nil {
		return scorm.ContentPackage{}, nil, errors.Wrap(err, "creating package")
	}
	return pkg, units, nil
}

// Discover lists the top-level directories of the root that hold a manifest.
func (s *LocalStore) Discover() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.Wrap(err, "reading content root")
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), scorm.ManifestName)); err == nil {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs, nil
}
