package partition

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// RemoteSource supplies partition files that are not on local disk.
type RemoteSource interface {
	// Fetch downloads the slug's index and id map to the given local paths.
	// Absent objects yield *NotFoundError.
	Fetch(ctx context.Context, slug, indexPath, mapPath string) error
	// List returns the slugs available remotely.
	List(ctx context.Context) ([]string, error)
}

// RemoteConfig locates partition files in an S3-compatible bucket. Objects are
// stored as <prefix>/<slug><ext> and <prefix>/<slug>.json.
type RemoteConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	IndexExt  string
}

// MinioSource reads partitions from MinIO or any S3-compatible store.
type MinioSource struct {
	client   *minio.Client
	bucket   string
	prefix   string
	indexExt string
}

// NewMinioSource connects to the store described by cfg.
func NewMinioSource(cfg RemoteConfig) (*MinioSource, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("remote partition source needs endpoint and bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return NewMinioSourceWithClient(client, cfg.Bucket, cfg.Prefix, cfg.IndexExt), nil
}

// NewMinioSourceWithClient wraps an existing client.
func NewMinioSourceWithClient(client *minio.Client, bucket, prefix, indexExt string) *MinioSource {
	if indexExt == "" {
		indexExt = DefaultIndexExt
	}
	return &MinioSource{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), indexExt: indexExt}
}

func (s *MinioSource) key(name string) string {
	return path.Join(s.prefix, name)
}

// Fetch downloads whichever of the two files is missing locally.
func (s *MinioSource) Fetch(ctx context.Context, slug, indexPath, mapPath string) error {
	files := []struct{ key, local string }{
		{s.key(slug + s.indexExt), indexPath},
		{s.key(slug + MapExt), mapPath},
	}
	// Check both objects before downloading either.
	for _, f := range files {
		if _, err := os.Stat(f.local); err == nil {
			continue
		}
		if _, err := s.client.StatObject(ctx, s.bucket, f.key, minio.StatObjectOptions{}); err != nil {
			if isNoSuchKey(err) {
				return &NotFoundError{Slug: slug, Path: "s3://" + s.bucket + "/" + f.key}
			}
			return fmt.Errorf("stat %s: %w", f.key, err)
		}
	}
	for _, f := range files {
		if _, err := os.Stat(f.local); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(f.local), 0755); err != nil {
			return fmt.Errorf("create partition dir: %w", err)
		}
		if err := s.client.FGetObject(ctx, s.bucket, f.key, f.local, minio.GetObjectOptions{}); err != nil {
			if isNoSuchKey(err) {
				return &NotFoundError{Slug: slug, Path: "s3://" + s.bucket + "/" + f.key}
			}
			return fmt.Errorf("download %s: %w", f.key, err)
		}
	}
	return nil
}

// List returns slugs that have both an index and an id map in the bucket.
func (s *MinioSource) List(ctx context.Context) ([]string, error) {
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	indexes := make(map[string]bool)
	maps := make(map[string]bool)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		switch {
		case strings.HasSuffix(name, s.indexExt):
			indexes[strings.TrimSuffix(name, s.indexExt)] = true
		case strings.HasSuffix(name, MapExt):
			maps[strings.TrimSuffix(name, MapExt)] = true
		}
	}
	return pairedSlugs(indexes, maps), nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func pairedSlugs(indexes, maps map[string]bool) []string {
	var slugs []string
	for slug := range indexes {
		if maps[slug] && ValidateSlug(slug) == nil {
			slugs = append(slugs, slug)
		}
	}
	sort.Strings(slugs)
	return slugs
}
