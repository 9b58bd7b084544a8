package files

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/iems/core"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{500, "500 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{2048, "2.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatFileSize(tt.size))
		})
	}
}

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		size        int64
		wantErr     string
	}{
		{"exactly the limit", "image/png", MaxImageSizeBytes, ""},
		{"content type params", "image/jpeg; charset=binary", 1024, ""},
		{"one byte over", "image/png", MaxImageSizeBytes + 1, "Image size must be less than 512KB"},
		{"wrong type", "application/pdf", 1024, "Only JPEG, PNG, GIF and WebP images are allowed"},
		{"empty", "image/webp", 0, "file is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateImage("photo.png", tt.contentType, tt.size)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.IsType(t, &core.ValidationError{}, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestValidateDocument(t *testing.T) {
	assert.NoError(t, ValidateDocument("slides.pdf", "application/pdf", MaxDocumentSizeBytes))

	err := ValidateDocument("slides.pdf", "application/pdf", MaxDocumentSizeBytes+1)
	require.Error(t, err)
	assert.Equal(t, "Document size must be less than 10MB", err.Error())

	err = ValidateDocument("photo.png", "image/png", 1024)
	require.Error(t, err)
	assert.IsType(t, &core.ValidationError{}, err)
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "events/ev1/images/cover.png", ObjectPath("events", "ev1", "images", "cover.png"))
	assert.Equal(t, "modules/m1/documents/notes.pdf", ObjectPath("modules", "m1", "documents", "../../etc/notes.pdf"))
	assert.Equal(t, "speakers/s1/photos/me.jpg", ObjectPath("speakers", "s1", "photos", `C:\Users\me\me.jpg`))
}

type memStore struct {
	objects map[string][]byte
	putErr  error
}

func (s *memStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := ioutil.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *memStore) URL(_ context.Context, key string) (string, error) {
	return "http://media.test/" + key, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func TestService_Upload(t *testing.T) {
	store := &memStore{objects: make(map[string][]byte)}
	svc := NewService(store, nil)
	ctx := context.Background()

	t.Run("stores a valid image", func(t *testing.T) {
		content := bytes.Repeat([]byte("x"), 2048)
		got, err := svc.Upload(ctx, Upload{
			Collection:  "events",
			OwnerID:     "ev1",
			Category:    "images",
			Name:        "cover.png",
			ContentType: "image/png",
			Size:        int64(len(content)),
			Body:        bytes.NewReader(content),
		}, KindImage)
		require.NoError(t, err)
		assert.Equal(t, StoredFile{
			Path:        "events/ev1/images/cover.png",
			URL:         "http://media.test/events/ev1/images/cover.png",
			Name:        "cover.png",
			Size:        2048,
			SizeLabel:   "2.0 KB",
			ContentType: "image/png",
		}, got)
		assert.Equal(t, content, store.objects[got.Path])

		svc.Remove(ctx, got.Path)
		assert.NotContains(t, store.objects, got.Path)
	})

	t.Run("rejects before storing", func(t *testing.T) {
		_, err := svc.Upload(ctx, Upload{
			Collection:  "modules",
			OwnerID:     "m1",
			Category:    "documents",
			Name:        "notes.pdf",
			ContentType: "application/pdf",
			Size:        MaxDocumentSizeBytes + 1,
			Body:        bytes.NewReader(nil),
		}, KindDocument)
		require.Error(t, err)
		assert.Empty(t, store.objects)
	})

	t.Run("store failure", func(t *testing.T) {
		failing := NewService(&memStore{objects: make(map[string][]byte), putErr: errors.New("boom")}, nil)
		_, err := failing.Upload(ctx, Upload{Name: "a.png", ContentType: "image/png", Size: 1, Body: bytes.NewReader([]byte("x"))}, KindImage)
		require.Error(t, err)
		assert.Equal(t, "boom", errors.Cause(err).Error())
	})
}
