package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
)

const defaultExportBatch = 1000

// AttemptSource reads the login audit trail in creation order.
type AttemptSource interface {
	ListAfter(ctx context.Context, cursor types.AttemptCursor, limit int) ([]types.LoginAttempt, error)
}

// ObjectWriter uploads one object.
type ObjectWriter interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// ExportResult describes one export run.
type ExportResult struct {
	Key    string
	Count  int
	Cursor types.AttemptCursor
}

// AttemptExporter copies login attempts into object storage as JSON Lines
// for audit replay.
type AttemptExporter struct {
	source    AttemptSource
	objects   ObjectWriter
	prefix    string
	batchSize int
	now       func() time.Time
	newID     func() string
	logger    zerolog.Logger
}

func NewAttemptExporter(source AttemptSource, objects ObjectWriter, prefix string, logger zerolog.Logger) *AttemptExporter {
	return &AttemptExporter{
		source:    source,
		objects:   objects,
		prefix:    prefix,
		batchSize: defaultExportBatch,
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    logger,
	}
}

// Export uploads every attempt positioned after the cursor. The returned
// cursor points at the last exported attempt, or is after unchanged when
// there was nothing to export.
func (e *AttemptExporter) Export(ctx context.Context, after types.AttemptCursor) (ExportResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	result := ExportResult{Cursor: after}
	for {
		batch, err := e.source.ListAfter(ctx, result.Cursor, e.batchSize)
		if err != nil {
			return ExportResult{}, fmt.Errorf("read login attempts: %w", err)
		}
		for _, attempt := range batch {
			if err := enc.Encode(attempt); err != nil {
				return ExportResult{}, err
			}
			result.Cursor = types.AttemptCursor{CreatedAt: attempt.CreatedAt, ID: attempt.ID}
			result.Count++
		}
		if len(batch) < e.batchSize {
			break
		}
	}

	if result.Count == 0 {
		e.logger.Info().Time("after", after.CreatedAt).Msg("no login attempts to export")
		return result, nil
	}

	now := e.now().UTC()
	result.Key = path.Join(e.prefix, now.Format("2006/01/02"), fmt.Sprintf("%d-%s.jsonl", now.Unix(), e.newID()))
	if err := e.objects.Put(ctx, result.Key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/x-ndjson"); err != nil {
		return ExportResult{}, fmt.Errorf("upload export: %w", err)
	}

	e.logger.Info().
		Str("key", result.Key).
		Int("count", result.Count).
		Time("cursor_created_at", result.Cursor.CreatedAt).
		Str("cursor_id", result.Cursor.ID).
		Msg("login attempts exported")
	return result, nil
}
