// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tomtom215/wikivault/internal/logging"
)

// errRemoteNotFound marks a missing remote object. Retrying cannot help.
var errRemoteNotFound = errors.New("remote object not found")

// s3API is the subset of *s3.Client used here, narrowed for fakes
type s3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Options configures an S3 or S3-compatible (MinIO, R2, Spaces) store
type S3Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Client stores archives as objects under Prefix in Bucket. The remote id
// is the object key.
type S3Client struct {
	api    s3API
	bucket string
	prefix string
}

// NewS3Client builds a client with static credentials. Missing bucket or
// credentials yield a client that reports IsConfigured() == false.
func NewS3Client(opts S3Options) *S3Client {
	c := &S3Client{
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
	}
	if opts.Bucket == "" || opts.AccessKey == "" || opts.SecretKey == "" {
		return c
	}

	s3opts := s3.Options{
		Region:       opts.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		UsePathStyle: opts.UsePathStyle,
	}
	if opts.Endpoint != "" {
		s3opts.BaseEndpoint = aws.String(opts.Endpoint)
	}
	c.api = s3.New(s3opts)
	return c
}

// newS3ClientWithAPI is used by tests to inject a fake
func newS3ClientWithAPI(api s3API, bucket, prefix string) *S3Client {
	return &S3Client{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (c *S3Client) Name() string { return "s3" }

func (c *S3Client) IsConfigured() bool {
	return c.api != nil && c.bucket != ""
}

func (c *S3Client) key(displayName string) string {
	if c.prefix == "" {
		return displayName
	}
	return path.Join(c.prefix, displayName)
}

// Upload puts the file under prefix/displayName
func (c *S3Client) Upload(ctx context.Context, localPath, displayName string) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("%w: s3 not configured", ErrRemoteSync)
	}

	f, err := os.Open(localPath) //nolint:gosec // G304: path is a stored archive
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %v", ErrRemoteSync, localPath, err)
	}
	defer f.Close() //nolint:errcheck // Best effort cleanup

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: failed to stat %s: %v", ErrRemoteSync, localPath, err)
	}

	key := c.key(displayName)
	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: put s3://%s/%s: %v", ErrRemoteSync, c.bucket, key, err)
	}

	logging.Debug().Str("bucket", c.bucket).Str("key", key).Int64("size_bytes", info.Size()).Msg("Uploaded backup to S3")
	return key, nil
}

// Download streams the object into a temp file next to destPath and renames it
func (c *S3Client) Download(ctx context.Context, remoteID, destPath string) error {
	if !c.IsConfigured() {
		return fmt.Errorf("%w: s3 not configured", ErrRemoteSync)
	}

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(remoteID),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%w: %w: s3://%s/%s", ErrRemoteSync, errRemoteNotFound, c.bucket, remoteID)
		}
		return fmt.Errorf("%w: get s3://%s/%s: %v", ErrRemoteSync, c.bucket, remoteID, err)
	}
	defer out.Body.Close() //nolint:errcheck // Best effort cleanup

	if err := writeFileAtomic(destPath, 0o600, func(w io.Writer) error {
		_, err := io.Copy(w, out.Body)
		return err
	}); err != nil {
		return fmt.Errorf("%w: failed to write download: %v", ErrRemoteSync, err)
	}
	return nil
}

// Delete removes the object. S3 reports success for keys that do not exist.
func (c *S3Client) Delete(ctx context.Context, remoteID string) error {
	if !c.IsConfigured() {
		return fmt.Errorf("%w: s3 not configured", ErrRemoteSync)
	}

	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(remoteID),
	})
	if err != nil {
		return fmt.Errorf("%w: delete s3://%s/%s: %v", ErrRemoteSync, c.bucket, remoteID, err)
	}
	return nil
}

// List returns every object under the prefix
func (c *S3Client) List(ctx context.Context) ([]RemoteObject, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("%w: s3 not configured", ErrRemoteSync)
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(c.bucket)}
	if c.prefix != "" {
		input.Prefix = aws.String(c.prefix + "/")
	}

	var objects []RemoteObject
	paginator := s3.NewListObjectsV2Paginator(c.api, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list s3://%s: %v", ErrRemoteSync, c.bucket, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			objects = append(objects, RemoteObject{
				ID:        key,
				Name:      path.Base(key),
				SizeBytes: aws.ToInt64(obj.Size),
				UpdatedAt: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}
