package contentsvc

import (
	"context"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-scorm/core/scorm"
)

var ErrNotFound = errors.New("content not found")

// Asset is one opened package file. Callers close it.
type Asset struct {
	io.ReadSeekCloser
	Name        string
	ContentType string
	Size        int64
	ModTime     time.Time
}

// Store resolves package-scoped paths to asset bytes.
type Store interface {
	Open(ctx context.Context, pkg scorm.ContentPackage, p string) (*Asset, error)
}

// LocalStore serves packages extracted under a root directory, each under its base path.
type LocalStore struct {
	root string
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Open(_ context.Context, pkg scorm.ContentPackage, p string) (*Asset, error) {
	rel, err := scorm.ContentPath(p)
	if err != nil {
		return nil, errors.Wrap(ErrNotFound, err.Error())
	}
	base, err := scorm.ContentPath(pkg.BasePath)
	if err != nil {
		return nil, errors.Wrapf(err, "base path of package %s", pkg.ID)
	}

	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, errors.Wrap(err, "resolving content root")
	}
	full := filepath.Join(root, filepath.FromSlash(base), filepath.FromSlash(rel))
	if !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return nil, errors.Wrap(ErrNotFound, "path escapes content root")
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNotFound, rel)
		}
		return nil, errors.Wrap(err, "opening asset")
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "reading asset info")
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, errors.Wrap(ErrNotFound, rel+" is a directory")
	}

	ctype, err := contentType(f, rel)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Asset{
		ReadSeekCloser: f,
		Name:           path.Base(rel),
		ContentType:    ctype,
		Size:           fi.Size(),
		ModTime:        fi.ModTime(),
	}, nil
}

// contentType trusts the extension first (scripts and styles cannot be sniffed), then the bytes.
func contentType(f io.ReadSeeker, name string) (string, error) {
	if ctype := mime.TypeByExtension(path.Ext(name)); ctype != "" {
		return ctype, nil
	}
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", errors.Wrap(err, "detecting content type")
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return "", errors.Wrap(err, "rewinding asset")
	}
	return mt.String(), nil
}

// Compressible reports whether an asset of ctype benefits from compression.
func Compressible(ctype string) bool {
	mediaType, _, _ := mime.ParseMediaType(ctype)
	switch {
	case strings.HasPrefix(mediaType, "text/"),
		strings.HasSuffix(mediaType, "javascript"),
		strings.HasSuffix(mediaType, "json"),
		strings.HasSuffix(mediaType, "xml"),
		mediaType == "image/svg+xml":
		return true
	}
	return false
}
