package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kdriss/caf/internal/hash"
)

// S3Store is a supplemental Store backend that keeps loose objects in an
// S3-compatible bucket instead of on local disk, keyed the same way as
// FileStore (objects/<hash[:2]>/<hash[2:]>). It is not used by the default
// repository facade; callers opt into it explicitly when they want a shared
// or durable backing store. Objects are stored uncompressed server-side —
// S3 already charges for storage independent of content, and fetching a
// range doesn't require decompressing the whole object first.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3Store using the default AWS config resolution
// chain (environment, shared config, instance profile). bucket is required;
// prefix is prepended to every object key ahead of "objects/" (e.g. "myrepo"
// gives keys "myrepo/objects/<hash[:2]>/<hash[2:]>").
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load AWS config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *S3Store) key(h hash.Hash) string {
	d, f := h.ShardPath()
	if s.prefix == "" {
		return fmt.Sprintf("objects/%s/%s", d, f)
	}
	return fmt.Sprintf("%s/objects/%s/%s", s.prefix, d, f)
}

// Put uploads data under its content hash, framed the same way FileStore
// frames it, so a repository can move between backends transparently.
func (s *S3Store) Put(kind Kind, data []byte) (hash.Hash, error) {
	ctx := context.Background()
	h := hash.New(framedPayload(kind, data))

	if s.Has(h) {
		return h, nil
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(h)),
		Body:   bytes.NewReader(framedPayload(kind, data)),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: s3 put %s: %w", h, err)
	}
	return h, nil
}

// Has reports whether an object exists in the bucket via a HeadObject call.
func (s *S3Store) Has(h hash.Hash) bool {
	ctx := context.Background()
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(h)),
	})
	return err == nil
}

// Get downloads and unframes the object named h.
func (s *S3Store) Get(h hash.Hash) (Kind, []byte, error) {
	ctx := context.Background()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(h)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", nil, &ErrNotFound{Hash: h}
		}
		return "", nil, fmt.Errorf("objectstore: s3 get %s: %w", h, err)
	}
	defer func() { _ = out.Body.Close() }()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return "", nil, fmt.Errorf("objectstore: s3 read %s: %w", h, err)
	}
	kind, payload, err := unframe(raw)
	if err != nil {
		return "", nil, fmt.Errorf("objectstore: corrupt s3 object %s: %w", h, err)
	}
	return kind, payload, nil
}

// Open returns a reader over the object's payload, for use by the checkout
// engine's blob writer. It downloads the whole object through Get first, so
// the payload is held fully in memory; the reader does not stream from the
// S3 response body.
func (s *S3Store) Open(h hash.Hash) (ReadCloser, error) {
	_, payload, err := s.Get(h)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

var _ Store = (*S3Store)(nil)
