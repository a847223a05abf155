package output

import (
	"context"
	"time"

	"uipilot/internal/domain/entity"
)

// DownloadPort observes the filesystem for the flow's artifact. Files
// present before StartWatching never count, even if they match.
type DownloadPort interface {
	StartWatching(dir string) error
	WaitForDownload(ctx context.Context, pattern string, timeout time.Duration) (*entity.DownloadRecord, error)
	MoveAndVerify(src, dest string, requiredKeys []string) error
	Close() error
}
