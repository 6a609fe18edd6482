package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/debemdeboas/scratchpad/internal/config"
	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/util/compression"
)

const (
	metaVersion     = "version"
	metaContentHash = "content-hash"
	metaCreatedAt   = "created-at"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps each document as a gzip-encoded object <prefix><id>.md. Version, hash
// and creation time live in the object metadata. Writes are serialized per process, so
// one server should own a prefix.
type S3Store struct { // implements Store
	client     S3API
	bucket     string
	prefix     string
	compressor compression.Compressor

	mu sync.Mutex
}

// NewS3Store builds an S3 client from cfg. Static credentials are used when set, the
// default AWS credential chain otherwise.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing S3 client: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		compressor: compression.GzipCompressor{},
	}
}

func (r *S3Store) key(id model.DocumentID) string {
	return r.prefix + string(id) + contentExt
}

func (r *S3Store) Get(ctx context.Context, id model.DocumentID) (*model.Scratchpad, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key(id)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting scratchpad object: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading scratchpad object: %w", err)
	}

	content := body
	if aws.ToString(out.ContentEncoding) == "gzip" {
		content, err = r.compressor.Decompress(body)
		if err != nil {
			return nil, fmt.Errorf("error decompressing content: %w", err)
		}
	}

	doc := &model.Scratchpad{
		ID:         id,
		Content:    content,
		ModifiedAt: aws.ToTime(out.LastModified).UTC(),
	}
	doc.Version, doc.ContentHash, doc.CreatedAt = parseObjectMetadata(out.Metadata, aws.ToString(out.ETag), doc.ModifiedAt)
	return doc, nil
}

func (r *S3Store) Put(ctx context.Context, id model.DocumentID, content []byte, mode model.WriteMode) (*model.Scratchpad, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	next := nextRevision(current, id, content, mode, time.Now().UTC())

	compressed, err := r.compressor.Compress(next.Content)
	if err != nil {
		return nil, fmt.Errorf("error compressing content: %w", err)
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(r.bucket),
		Key:             aws.String(r.key(id)),
		Body:            bytes.NewReader(compressed),
		ContentLength:   aws.Int64(int64(len(compressed))),
		ContentType:     aws.String("text/markdown; charset=utf-8"),
		ContentEncoding: aws.String("gzip"),
		Metadata: map[string]string{
			metaVersion:     strconv.FormatInt(int64(next.Version), 10),
			metaContentHash: next.ContentHash,
			metaCreatedAt:   next.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error putting scratchpad object: %w", err)
	}

	repoLogger.Debug().Str("id", string(id)).Int64("version", int64(next.Version)).Msg("Scratchpad uploaded")
	return next, nil
}

func (r *S3Store) List(ctx context.Context) ([]model.DocumentInfo, error) {
	infos := make([]model.DocumentInfo, 0)

	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(r.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("error listing scratchpad objects: %w", err)
		}

		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), r.prefix)
			if strings.Contains(name, "/") || !strings.HasSuffix(name, contentExt) {
				continue
			}
			id := model.DocumentID(strings.TrimSuffix(name, contentExt))

			head, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(r.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return nil, fmt.Errorf("error reading scratchpad metadata: %w", err)
			}
			version, hash, _ := parseObjectMetadata(head.Metadata, aws.ToString(head.ETag), time.Time{})
			infos = append(infos, model.DocumentInfo{ID: id, Version: version, ContentHash: hash})
		}
	}

	sortInfos(infos)
	return infos, nil
}

func (r *S3Store) Close() error {
	return nil
}

// isS3NotFound also matches the bare error codes some S3-compatible servers return.
func isS3NotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// parseObjectMetadata falls back to version 1 and the ETag for objects uploaded by
// other tools.
func parseObjectMetadata(meta map[string]string, etag string, modified time.Time) (model.Version, string, time.Time) {
	version := model.Version(1)
	if v, err := strconv.ParseInt(meta[metaVersion], 10, 64); err == nil && v > 0 {
		version = model.Version(v)
	}

	hash := meta[metaContentHash]
	if hash == "" {
		hash = strings.Trim(etag, `"`)
	}

	created := modified
	if t, err := time.Parse(time.RFC3339Nano, meta[metaCreatedAt]); err == nil {
		created = t
	}
	return version, hash, created
}
