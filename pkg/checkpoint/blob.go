package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/gcsblob"  // gs:// buckets
	_ "gocloud.dev/blob/memblob"  // mem:// buckets
	_ "gocloud.dev/blob/s3blob"   // s3:// buckets
	"gocloud.dev/gcerrors"
)

// blobBackend keeps records as objects in a gocloud.dev bucket. An object
// only becomes visible when its writer is closed, which gives the same
// all-or-nothing guarantee as a local rename.
type blobBackend struct {
	bucket *blob.Bucket
	url    string
	owned  bool
}

// NewBlobStore wraps an open bucket. The caller keeps ownership of the
// bucket.
func NewBlobStore(bucket *blob.Bucket, label string, log *slog.Logger) *Records {
	return newRecords(&blobBackend{bucket: bucket, url: label}, log)
}

// OpenBlobStore opens the bucket at url (gs://, s3://, file://, mem://).
func OpenBlobStore(ctx context.Context, url string, log *slog.Logger) (*Records, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint bucket %s: %w", url, err)
	}
	return newRecords(&blobBackend{bucket: bucket, url: url, owned: true}, log), nil
}

func (b *blobBackend) get(ctx context.Context, name string) ([]byte, error) {
	data, err := b.bucket.ReadAll(ctx, name)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, errNotFound
	}
	return data, err
}

func (b *blobBackend) put(ctx context.Context, name string, data []byte) error {
	w, err := b.bucket.NewWriter(ctx, name, &blob.WriterOptions{ContentType: "text/plain"})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", name, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", name, err)
	}

	return nil
}

func (b *blobBackend) list(ctx context.Context, prefix string) ([]string, error) {
	iter := b.bucket.List(&blob.ListOptions{Prefix: prefix})

	var names []string
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir || strings.HasSuffix(obj.Key, ".attrs") {
			continue
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func (b *blobBackend) location() string {
	return b.url
}

func (b *blobBackend) close() error {
	if b.owned && b.bucket != nil {
		return b.bucket.Close()
	}
	return nil
}
