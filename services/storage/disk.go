// Package storagesvc provides the object stores uploaded files are kept in.
package storagesvc

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/files"
)

var errInvalidKey = errors.New("invalid object key")

type diskStore struct {
	root    string
	baseURL string
}

var _ files.ObjectStore = (*diskStore)(nil) // interface compliance check

// NewDiskStore keeps objects under conf.Storage.MediaRoot and serves them from conf.Storage.MediaBaseURL.
func NewDiskStore(conf *core.Config) *diskStore {
	return &diskStore{
		root:    conf.Storage.MediaRoot,
		baseURL: strings.TrimSuffix(conf.Storage.MediaBaseURL, "/"),
	}
}

// Root is the directory objects are written to.
func (s *diskStore) Root() string {
	return s.root
}

// path maps a key to a file below root; keys escaping root are rejected.
func (s *diskStore) path(key string) (string, error) {
	key = strings.ReplaceAll(key, "\\", "/")
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", errInvalidKey
		}
	}
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", errInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (s *diskStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "creating directories")
	}

	// write to a temp file first so readers never see a partial object
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, "writing file")
	}
	if size > 0 && n != size {
		return errors.Errorf("writing file: expected %d bytes, got %d", size, n)
	}
	return errors.Wrap(os.Rename(tmp.Name(), p), "moving file")
}

func (s *diskStore) URL(_ context.Context, key string) (string, error) {
	if _, err := s.path(key); err != nil {
		return "", err
	}
	segments := strings.Split(strings.Trim(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(segments, "/"), nil
}

// Delete removes the object; a missing object is not an error.
func (s *diskStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing file")
	}
	return nil
}
