package echoapi

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/files"
)

const (
	uploadField = "file"

	// room left for the multipart envelope around the file
	uploadOverheadBytes = 64 * 1024
)

// uploadBodyLimit rejects bodies that cannot hold a valid file before the multipart form is parsed.
func uploadBodyLimit(maxFileSize int64) echo.MiddlewareFunc {
	return middleware.BodyLimit(fmt.Sprintf("%dK", (maxFileSize+uploadOverheadBytes)/1024))
}

type uploader struct {
	svc *files.Service
}

// upload stores the multipart `file` of the request under collection/ownerID/category.
func (u uploader) upload(ctx echo.Context, collection, ownerID, category string, kind files.Kind) (files.StoredFile, error) {
	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		var herr *echo.HTTPError
		if errors.As(err, &herr) {
			return files.StoredFile{}, herr
		}
		return files.StoredFile{}, core.NewValidationError(nil, core.FieldError{Field: uploadField, Error: "a file is required"})
	}
	src, err := fh.Open()
	if err != nil {
		return files.StoredFile{}, errors.Wrap(err, "opening uploaded file")
	}
	defer src.Close()

	stored, err := u.svc.Upload(ctx.Request().Context(), files.Upload{
		Collection:  collection,
		OwnerID:     ownerID,
		Category:    category,
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        src,
	}, kind)
	return stored, errors.Wrap(err, "uploading file")
}

// discard removes a stored file whose owner could not be updated.
func (u uploader) discard(ctx echo.Context, stored files.StoredFile) {
	u.svc.Remove(ctx.Request().Context(), stored.Path)
}
