package monitor

import (
	"context"

	"igmonitor/pkg/models"
)

// Fetcher yields candidate posts/stories for an account, ordered as the
// source returns them (newest first). Implementations classify failures as
// auth, rate-limit or network errors.
type Fetcher interface {
	Fetch(ctx context.Context, account models.Account, maxItems int) (*models.FetchResult, error)
}

// Processor runs the downstream analysis/upload pipeline for one item. It
// must be safe to call again for the same item on a later run: an item whose
// commit was lost is re-fetched and re-processed (at-least-once delivery).
type Processor interface {
	Process(ctx context.Context, item models.ContentItem) (*models.ProcessedResult, error)
}

// Notifier delivers the end-of-run report. Best effort: failures are logged
// and never block state commit.
type Notifier interface {
	SendReport(ctx context.Context, summary *models.RunSummary) error
}
