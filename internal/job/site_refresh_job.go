package job

import (
	"context"
	"errors"

	"github.com/xxxsen/webrag/internal/service"
)

// SiteRefreshJob re-crawls the configured sites so the index tracks content
// changes. Unchanged pages are skipped by the ingest layer's content hash.
type SiteRefreshJob struct {
	ingest *service.IngestService
}

func NewSiteRefreshJob(ingest *service.IngestService) *SiteRefreshJob {
	return &SiteRefreshJob{ingest: ingest}
}

func (j *SiteRefreshJob) Name() string {
	return "site_refresh"
}

func (j *SiteRefreshJob) Run(ctx context.Context) error {
	if j.ingest == nil {
		return nil
	}
	_, err := j.ingest.Run(ctx)
	if errors.Is(err, service.ErrRunning) {
		// A manual run is in flight; the next tick will catch up.
		return nil
	}
	return err
}
