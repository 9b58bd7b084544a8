package storagesvc

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/trezcool/iems/core"
	"github.com/trezcool/iems/core/files"
)

// overridden in tests
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
	deleteObject = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
		return c.DeleteObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

type s3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
	// base of public object URLs, used when expiry is 0
	publicURL string
}

var _ files.ObjectStore = (*s3Store)(nil) // interface compliance check

// NewS3Store connects to the bucket described by conf.Storage.
// With a custom endpoint (MinIO and friends) path-style addressing is used.
func NewS3Store(ctx context.Context, conf *core.Config) (*s3Store, error) {
	sc := conf.Storage
	opts := []func(*config.LoadOptions) error{config.WithRegion(sc.S3Region)}
	if sc.S3AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.S3AccessKey, sc.S3SecretKey, ""),
		))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if sc.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := "https://" + sc.S3Bucket + ".s3." + sc.S3Region + ".amazonaws.com"
	if sc.S3Endpoint != "" {
		publicURL = strings.TrimSuffix(sc.S3Endpoint, "/") + "/" + sc.S3Bucket
	}
	if sc.S3PublicURL != "" {
		publicURL = strings.TrimSuffix(sc.S3PublicURL, "/")
	}

	return &s3Store{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    sc.S3Bucket,
		expiry:    sc.URLExpiry,
		publicURL: publicURL,
	}, nil
}

func (s *s3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	// the SDK needs a seekable body to checksum the payload
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(body)
		if err != nil {
			return errors.Wrap(err, "reading upload")
		}
		rs = bytes.NewReader(buf)
		size = int64(len(buf))
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        rs,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := putObject(s.client, ctx, in); err != nil {
		return errors.Wrapf(err, "putting object %s", key)
	}
	return nil
}

// URL returns the public object URL, or a presigned GET URL when an expiry is configured.
// Only the public URL is stable enough to be saved on a record.
func (s *s3Store) URL(ctx context.Context, key string) (string, error) {
	if s.expiry <= 0 {
		segments := strings.Split(strings.Trim(key, "/"), "/")
		for i, seg := range segments {
			segments[i] = url.PathEscape(seg)
		}
		return s.publicURL + "/" + strings.Join(segments, "/"), nil
	}

	req, err := presignGetObject(s.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", errors.Wrapf(err, "presigning object %s", key)
	}
	return req.URL, nil
}

func (s *s3Store) Delete(ctx context.Context, key string) error {
	_, err := deleteObject(s.client, ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "deleting object %s", key)
}
