package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3Backend stores each record as the object <prefix>/<id>.json in one bucket.
type s3Backend struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// newS3Backend connects to an S3-compatible endpoint with static credentials and path-style addressing.
func newS3Backend(ctx context.Context, cfg ServiceConfig) (*s3Backend, error) {
	sdkCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})

	return &s3Backend{
		bucket:   cfg.S3BucketName,
		prefix:   strings.Trim(cfg.S3Prefix, "/"),
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

func (b *s3Backend) key(id string) string {
	if b.prefix == "" {
		return id + RecordExt
	}
	return b.prefix + "/" + id + RecordExt
}

func (b *s3Backend) listPrefix() string {
	if b.prefix == "" {
		return ""
	}
	return b.prefix + "/"
}

// Ensure checks that the bucket is reachable. Prefixes need no creation.
func (b *s3Backend) Ensure(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &b.bucket})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", b.bucket, err)
	}
	return nil
}

func (b *s3Backend) Get(ctx context.Context, id string) ([]byte, bool, error) {
	key := b.key(id)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read object %s: %w", key, err)
	}
	return raw, true, nil
}

func (b *s3Backend) Put(ctx context.Context, id string, raw []byte) error {
	key := b.key(id)
	_, err := b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &b.bucket,
		Key:         &key,
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload object %s: %w", key, err)
	}
	return nil
}

// List returns ids of objects directly under the prefix, in key order.
func (b *s3Backend) List(ctx context.Context) ([]string, error) {
	prefix := b.listPrefix()
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: &b.bucket,
		Prefix: aws.String(prefix),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects under %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if id, ok := idFromObjectName(strings.TrimPrefix(aws.ToString(obj.Key), prefix)); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (b *s3Backend) Close() error {
	return nil
}

// idFromObjectName maps "<id>.json" to id, rejecting nested keys and other suffixes.
func idFromObjectName(name string) (string, bool) {
	if strings.Contains(name, "/") || !strings.HasSuffix(name, RecordExt) {
		return "", false
	}
	id := strings.TrimSuffix(name, RecordExt)
	return id, id != ""
}
