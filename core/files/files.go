// Package files validates uploaded files and stores them in an object store.
package files

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
)

const (
	MaxImageSizeBytes    = 512 * 1024
	MaxDocumentSizeBytes = 10 * 1024 * 1024
)

// Kind is the category of an upload; it decides the accepted types and size limit.
type Kind int

const (
	KindImage Kind = iota
	KindDocument
)

var (
	ImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

	DocumentTypes = []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	}

	// errors
	errImageTooLarge    = errors.New("Image size must be less than 512KB")
	errDocumentTooLarge = errors.New("Document size must be less than 10MB")
	errImageType        = errors.New("Only JPEG, PNG, GIF and WebP images are allowed")
	errDocumentType     = errors.New("Only PDF, DOC, DOCX, PPT and PPTX documents are allowed")
	errEmptyFile        = errors.New("file is empty")
)

// ValidateImage checks the type and size of an image; exactly MaxImageSizeBytes is accepted.
func ValidateImage(name, contentType string, size int64) error {
	return validate(name, contentType, size, ImageTypes, MaxImageSizeBytes, errImageType, errImageTooLarge)
}

// ValidateDocument checks the type and size of a document; exactly MaxDocumentSizeBytes is accepted.
func ValidateDocument(name, contentType string, size int64) error {
	return validate(name, contentType, size, DocumentTypes, MaxDocumentSizeBytes, errDocumentType, errDocumentTooLarge)
}

func validate(name, contentType string, size int64, types []string, maxSize int64, typeErr, sizeErr error) error {
	if !accepts(types, contentType) {
		return core.NewValidationError(typeErr, core.FieldError{Field: "file", Error: typeErr.Error()})
	}
	if size <= 0 {
		return core.NewValidationError(errEmptyFile, core.FieldError{Field: "file", Error: fmt.Sprintf("%s is empty", SanitizeName(name))})
	}
	if size > maxSize {
		return core.NewValidationError(sizeErr, core.FieldError{Field: "file", Error: sizeErr.Error()})
	}
	return nil
}

func accepts(types []string, contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, t := range types {
		if ct == t {
			return true
		}
	}
	return false
}

// FormatFileSize renders a byte count for humans: "500 B", "2.0 KB", "5.0 MB".
func FormatFileSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
}

// SanitizeName reduces a client-supplied file name to its base name.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}

// ObjectPath returns the storage key of a file: {collection}/{id}/{category}/{filename}.
func ObjectPath(collection, id, category, filename string) string {
	return path.Join(collection, id, category, SanitizeName(filename))
}

type (
	// ObjectStore persists file contents under a key.
	ObjectStore interface {
		Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
		URL(ctx context.Context, key string) (string, error)
		Delete(ctx context.Context, key string) error
	}

	Upload struct {
		Collection  string // events, societies, modules, speakers
		OwnerID     string
		Category    string // images, logos, documents, photos
		Name        string
		ContentType string
		Size        int64
		Body        io.Reader
	}

	StoredFile struct {
		Path        string `json:"path"`
		URL         string `json:"url"`
		Name        string `json:"name"`
		Size        int64  `json:"size"`
		SizeLabel   string `json:"size_label"`
		ContentType string `json:"content_type"`
	}

	Service struct {
		store  ObjectStore
		logger core.Logger
	}
)

func NewService(store ObjectStore, logger core.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Upload validates the file against kind and stores it.
func (svc *Service) Upload(ctx context.Context, up Upload, kind Kind) (StoredFile, error) {
	var err error
	switch kind {
	case KindDocument:
		err = ValidateDocument(up.Name, up.ContentType, up.Size)
	default:
		err = ValidateImage(up.Name, up.ContentType, up.Size)
	}
	if err != nil {
		return StoredFile{}, err
	}

	name := SanitizeName(up.Name)
	key := ObjectPath(up.Collection, up.OwnerID, up.Category, name)
	if err = svc.store.Put(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return StoredFile{}, errors.Wrap(err, "storing file")
	}
	url, err := svc.store.URL(ctx, key)
	if err != nil {
		return StoredFile{}, errors.Wrap(err, "resolving file url")
	}
	return StoredFile{
		Path:        key,
		URL:         url,
		Name:        name,
		Size:        up.Size,
		SizeLabel:   FormatFileSize(up.Size),
		ContentType: up.ContentType,
	}, nil
}

// Remove deletes a stored file; failures are only logged.
func (svc *Service) Remove(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := svc.store.Delete(ctx, key); err != nil && svc.logger != nil {
		svc.logger.Warn(fmt.Sprintf("deleting file %s: %v", key, err), err)
	}
}
