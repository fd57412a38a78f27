package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// DefaultArchivePrefix is the object prefix used when none is configured.
const DefaultArchivePrefix = "completions"

// ArchiveListener stores each completion as a JSON report under
// <prefix>/<YYYY-MM-DD>/<run_id>.json.
type ArchiveListener struct {
	store  BlobStore
	prefix string
	logger *zap.Logger
}

// NewArchiveListener returns a listener writing to store.
func NewArchiveListener(store BlobStore, prefix string, logger *zap.Logger) *ArchiveListener {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveListener{store: store, prefix: prefix, logger: logger}
}

// ObjectPath returns the archive path for a completion.
func (l *ArchiveListener) ObjectPath(c warmer.Completion) string {
	runID := c.RunID
	if runID == "" {
		runID = "unknown"
	}
	return path.Join(l.prefix, c.FinishedAt.UTC().Format("2006-01-02"), runID+".json")
}

// OnComplete implements warmer.CompletionListener.
func (l *ArchiveListener) OnComplete(ctx context.Context, c warmer.Completion) {
	body, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		l.logger.Warn("encode completion report", zap.String("run_id", c.RunID), zap.Error(err))
		return
	}
	uri, err := l.store.PutObject(ctx, l.ObjectPath(c), "application/json", bytes.NewReader(body))
	if err != nil {
		l.logger.Warn("archive completion report", zap.String("run_id", c.RunID), zap.Error(err))
		return
	}
	l.logger.Info("completion report archived", zap.String("run_id", c.RunID), zap.String("uri", uri))
}
