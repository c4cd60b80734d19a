package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/pkg/storage"
)

const (
	exportPageSize = 500
	// MaxExportRows caps one export; narrower filters are needed beyond it.
	MaxExportRows = 50000
)

// Lister pages through audit entries.
type Lister interface {
	List(ctx context.Context, f Filters, limit, offset int) ([]models.AuditLogEntry, int, error)
}

// ObjectStore is the part of *storage.S3 the exporter uses.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) error
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ExportsBucket() string
	PresignExpire() time.Duration
}

// Export describes a finished export.
type Export struct {
	Key         string    `json:"key"`
	Rows        int       `json:"rows"`
	Truncated   bool      `json:"truncated"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Exporter writes filtered audit entries as CSV to the exports bucket.
type Exporter struct {
	entries Lister
	store   ObjectStore
	now     func() time.Time
	logger  *zap.Logger
}

// NewExporter creates an exporter.
func NewExporter(entries Lister, store ObjectStore, logger *zap.Logger) *Exporter {
	return &Exporter{entries: entries, store: store, now: time.Now, logger: logger}
}

var csvHeader = []string{"id", "created_at", "action", "user_id", "target_user_id", "ip_address", "metadata"}

// Export writes every entry matching f, newest first, up to MaxExportRows.
func (e *Exporter) Export(ctx context.Context, f Filters) (*Export, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	rows, total := 0, 0
	for offset := 0; offset < MaxExportRows; offset += exportPageSize {
		page, n, err := e.entries.List(ctx, f, exportPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("export page at %d: %w", offset, err)
		}
		total = n
		for _, entry := range page {
			if rows == MaxExportRows {
				break
			}
			if err := w.Write(csvRecord(entry)); err != nil {
				return nil, err
			}
			rows++
		}
		if len(page) < exportPageSize {
			break
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}

	now := e.now()
	key := storage.AuditExportKey(now, fmt.Sprintf("audit-%s-%s.csv", now.UTC().Format("20060102T150405Z"), uuid.NewString()[:8]))
	bucket := e.store.ExportsBucket()
	if err := e.store.Upload(ctx, bucket, key, "text/csv", bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		return nil, err
	}
	expires := e.store.PresignExpire()
	url, err := e.store.GeneratePresignedDownloadURL(ctx, bucket, key, expires)
	if err != nil {
		// nobody can fetch the file without a link
		if delErr := e.store.DeleteObject(ctx, bucket, key); delErr != nil {
			e.logger.Warn("delete unreachable export", zap.Error(delErr), zap.String("key", key))
		}
		return nil, err
	}
	e.logger.Info("audit log exported", zap.String("key", key), zap.Int("rows", rows))
	return &Export{
		Key:         key,
		Rows:        rows,
		Truncated:   total > rows,
		DownloadURL: url,
		ExpiresAt:   now.Add(expires).UTC(),
	}, nil
}

func csvRecord(e models.AuditLogEntry) []string {
	return []string{
		e.ID.String(),
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.Action,
		uuidOrEmpty(e.UserID),
		uuidOrEmpty(e.TargetUserID),
		e.IPAddress,
		strings.TrimSpace(string(e.Metadata)),
	}
}

func uuidOrEmpty(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
