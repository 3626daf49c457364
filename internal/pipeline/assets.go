package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/loomlight/fabricpress/internal/storage"
)

// AssetSource resolves the brand logo bytes for watermark steps. Failures
// are tolerated everywhere an AssetSource is consumed: the watermark stage
// falls back to rendered text instead of failing the job.
type AssetSource interface {
	Logo(ctx context.Context) ([]byte, error)
}

// FileAssetSource reads the logo from a fixed path on the worker host.
type FileAssetSource struct {
	Path string
}

func (s FileAssetSource) Logo(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read logo asset %s: %w", s.Path, err)
	}
	return data, nil
}

// ObjectAssetSource reads the logo from the shared object store, for worker
// fleets without a baked-in asset directory.
type ObjectAssetSource struct {
	Storage *storage.Client
	Key     string
}

func (s ObjectAssetSource) Logo(ctx context.Context) ([]byte, error) {
	if s.Storage == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return s.Storage.ReadObject(ctx, s.Key)
}
