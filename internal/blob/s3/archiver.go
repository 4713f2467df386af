package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/spikebot/internal/domain"
)

// largeObject is the archive size above which uploads go multipart.
const largeObject = 16 << 20

// AlertSource lists alerts older than a cutoff, oldest first.
type AlertSource interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Alert, error)
}

// AlertArchiver writes old alerts to the bucket as JSON lines, one object
// per run:
//
//	archive/alerts/2026-01-31.jsonl
//	archive/alerts/2026-01-31.2.jsonl   second run with the same cutoff date
type AlertArchiver struct {
	blobs  domain.BlobStore
	alerts AlertSource
	audit  domain.AuditStore
}

// NewAlertArchiver creates an AlertArchiver. audit may be nil.
func NewAlertArchiver(blobs domain.BlobStore, alerts AlertSource, audit domain.AuditStore) *AlertArchiver {
	return &AlertArchiver{blobs: blobs, alerts: alerts, audit: audit}
}

func (a *AlertArchiver) ArchiveAlerts(ctx context.Context, before time.Time) (int64, error) {
	alerts, err := a.alerts.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive: list alerts: %w", err)
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, al := range alerts {
		if err := enc.Encode(al); err != nil {
			return 0, fmt.Errorf("s3blob: archive: encode %s: %w", al.ID, err)
		}
	}

	key, err := a.freeKey(ctx, before)
	if err != nil {
		return 0, err
	}
	put := a.blobs.Put
	if buf.Len() > largeObject {
		put = a.blobs.PutLarge
	}
	if err := put(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive: upload: %w", err)
	}

	n := int64(len(alerts))
	if a.audit != nil {
		detail := map[string]any{"path": key, "count": n, "before": before.UTC().Format(time.RFC3339)}
		if err := a.audit.Log(ctx, "archive.alerts", detail); err != nil {
			return n, fmt.Errorf("s3blob: archive: audit: %w", err)
		}
	}
	return n, nil
}

// freeKey returns the first archive key for the cutoff date that is not
// taken yet.
func (a *AlertArchiver) freeKey(ctx context.Context, before time.Time) (string, error) {
	day := before.UTC().Format("2006-01-02")
	for i := 1; ; i++ {
		key := "archive/alerts/" + day + ".jsonl"
		if i > 1 {
			key = fmt.Sprintf("archive/alerts/%s.%d.jsonl", day, i)
		}
		taken, err := a.blobs.Exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive: check %s: %w", key, err)
		}
		if !taken {
			return key, nil
		}
	}
}

var _ domain.Archiver = (*AlertArchiver)(nil)

// ChartArchive keeps rendered charts under charts/{period}/, named by
// render time:
//
//	charts/day/20260131T154500Z.png
type ChartArchive struct {
	blobs domain.BlobStore
}

func NewChartArchive(blobs domain.BlobStore) *ChartArchive {
	return &ChartArchive{blobs: blobs}
}

// SaveChart uploads png and returns its key.
func (c *ChartArchive) SaveChart(ctx context.Context, period domain.Period, png []byte, at time.Time) (string, error) {
	key := fmt.Sprintf("charts/%s/%s.png", period, at.UTC().Format("20060102T150405Z"))
	if err := c.blobs.Put(ctx, key, bytes.NewReader(png), "image/png"); err != nil {
		return "", fmt.Errorf("s3blob: save chart: %w", err)
	}
	return key, nil
}

func (c *ChartArchive) ListCharts(ctx context.Context) ([]domain.BlobInfo, error) {
	infos, err := c.blobs.List(ctx, "charts/")
	if err != nil {
		return nil, fmt.Errorf("s3blob: list charts: %w", err)
	}
	return infos, nil
}
