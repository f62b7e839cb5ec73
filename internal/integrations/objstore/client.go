package objstore

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key     string
	Size    int64
	Updated time.Time
}

// Client is the minimal prefix-addressable object store the backup archive
// needs. Implemented by s3store (MinIO/S3) and memstore (tests).
type Client interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
