package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pixelkit/bgremover/pkg/errors"
)

// S3Options configures where downloads are uploaded
type S3Options struct {
	Bucket    string
	Region    string
	Prefix    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// objectPutter is the part of the S3 API the client needs
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client saves downloads to an S3 bucket
type Client struct {
	s3Client objectPutter
	bucket   string
	prefix   string
}

// NewClient creates a new S3 client. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewClient(ctx context.Context, opts S3Options) (*Client, error) {
	slog.Info("s3_client_init", "bucket", opts.Bucket, "region", opts.Region, "endpoint", opts.Endpoint)

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	slog.Info("s3_client_created", "bucket", opts.Bucket)

	return newClient(s3Client, opts.Bucket, opts.Prefix), nil
}

func newClient(api objectPutter, bucket, prefix string) *Client {
	return &Client{
		s3Client: api,
		bucket:   bucket,
		prefix:   prefix,
	}
}

// Key returns the object key a download named name is stored under
func (c *Client) Key(name string) string {
	if c.prefix == "" {
		return name
	}
	return path.Join(c.prefix, name)
}

// Save uploads data and returns its s3:// location
func (c *Client) Save(ctx context.Context, name, mediaType string, data []byte) (string, error) {
	key := c.Key(name)
	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	slog.Info("s3_upload_start", "bucket", c.bucket, "s3_key", key, "size", len(data))

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(c.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentLength:      aws.Int64(int64(len(data))),
		ContentType:        aws.String(mediaType),
		ContentDisposition: aws.String(`attachment; filename="` + name + `"`),
		Metadata: map[string]string{
			"sha256": checksum,
		},
	})
	if err != nil {
		slog.Error("s3_put_object_failed", "s3_key", key, "error", err)
		return "", errors.Wrap(err, "failed to upload object to S3")
	}

	location := "s3://" + c.bucket + "/" + key
	slog.Info("s3_upload_complete", "location", location, "sha256", checksum[:16]+"...")

	return location, nil
}
