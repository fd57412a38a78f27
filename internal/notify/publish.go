package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// PublishListener forwards completions to a Publisher under EventCompleted.
type PublishListener struct {
	pub    Publisher
	logger *zap.Logger
}

// NewPublishListener returns a listener that publishes through pub.
func NewPublishListener(pub Publisher, logger *zap.Logger) *PublishListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishListener{pub: pub, logger: logger}
}

// OnComplete implements warmer.CompletionListener.
func (l *PublishListener) OnComplete(ctx context.Context, c warmer.Completion) {
	id, err := l.pub.Publish(ctx, EventCompleted, c)
	if err != nil {
		l.logger.Warn("publish completion failed", zap.String("run_id", c.RunID), zap.Error(err))
		return
	}
	l.logger.Debug("completion published", zap.String("run_id", c.RunID), zap.String("message_id", id))
}
