package storagesvc

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/files"
)

// New returns the object store selected by conf.Storage.Backend.
func New(ctx context.Context, conf *core.Config) (files.ObjectStore, error) {
	switch strings.ToLower(conf.Storage.Backend) {
	case "", "disk":
		return NewDiskStore(conf), nil
	case "s3":
		return NewS3Store(ctx, conf)
	}
	return nil, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
}
