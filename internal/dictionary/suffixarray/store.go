package suffixarray

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsScheme = "gs://"

// Store serves per-sentence grammar files by name.
type Store interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirStore reads grammars from a local directory.
type DirStore string

func (d DirStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(string(d), name))
}

func (d DirStore) String() string { return string(d) }

// GCSStore reads grammars from a Cloud Storage bucket under a prefix.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore connects to the bucket named by a gs://bucket/prefix URI.
// An empty credentialsFile uses application default credentials.
func NewGCSStore(ctx context.Context, uri, credentialsFile string) (*GCSStore, error) {
	bucket, prefix, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("credentials file %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	object := path.Join(s.prefix, name)
	r, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, object, os.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("reading gs://%s/%s: %w", s.bucket, object, err)
	}
	return r, nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) String() string {
	return gcsScheme + path.Join(s.bucket, s.prefix)
}

// ParseGCSURI splits gs://bucket/prefix.
func ParseGCSURI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, gcsScheme)
	if !ok {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", uri)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// OpenStore returns a GCSStore for gs:// locations and a DirStore otherwise.
func OpenStore(ctx context.Context, location, credentialsFile string) (Store, error) {
	if strings.HasPrefix(location, gcsScheme) {
		return NewGCSStore(ctx, location, credentialsFile)
	}
	return DirStore(location), nil
}
