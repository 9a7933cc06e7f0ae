package checkpoint

import (
	"context"
	"log/slog"
	"strings"
)

// Open returns the Store for a location. A location with a URL scheme
// (gs://bucket/prefix, s3://bucket, file:///dir, mem://) is opened as a
// bucket; anything else is a local directory.
func Open(ctx context.Context, location string, log *slog.Logger) (*Records, error) {
	if strings.Contains(location, "://") {
		return OpenBlobStore(ctx, location, log)
	}
	return NewFileStore(location, log)
}
