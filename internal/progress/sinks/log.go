package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/progress"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// LogSink renders events as one human-readable console line each.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logEvent(evt)
	}
	return nil
}

func (s *LogSink) logEvent(evt progress.Event) {
	urlField := zap.String("url", evt.URL)
	switch evt.Stage {
	case progress.StageRunStart:
		s.logger.Info("Run started", zap.String("run_id", evt.RunUUID().String()), zap.String("note", evt.Note))
	case progress.StageRunDone:
		s.logger.Info("Run finished", zap.String("run_id", evt.RunUUID().String()),
			zap.Duration("dur", evt.Dur), zap.String("note", evt.Note))
	case progress.StageFetchStart:
		s.logger.Info(fmt.Sprintf("Fetching %s", evt.URL))
	case progress.StageFetchDone:
		s.logger.Debug("Fetched", urlField, zap.Int64("bytes", evt.Bytes), zap.Duration("dur", evt.Dur))
	case progress.StageItemFailed:
		s.logger.Warn(fmt.Sprintf("Failed checking %s: %s", evt.URL, evt.Note), zap.String("reason", evt.Reason))
	case progress.StageNewItem:
		s.logger.Info(fmt.Sprintf("Adding product %q with price %s", displayName(evt), tracker.FormatPrice(evt.NewPrice)), urlField)
	case progress.StagePriceChanged:
		s.logger.Info(fmt.Sprintf("Price changed for %q: %s -> %s (last check at %s)",
			displayName(evt), tracker.FormatPrice(evt.OldPrice), tracker.FormatPrice(evt.NewPrice), tracker.FormatTime(evt.PrevCheckedAt)), urlField)
	case progress.StagePriceUnchanged:
		s.logger.Debug("Price unchanged", urlField, zap.Float64("price", evt.NewPrice))
	case progress.StageNotified:
		s.logger.Info(fmt.Sprintf("Sent notification for %s", evt.URL), zap.String("recipients", evt.Note))
	case progress.StageNotifySuppressed:
		s.logger.Info(fmt.Sprintf("Notification suppressed for %s", evt.URL), zap.String("note", evt.Note))
	case progress.StageNotifyFailed:
		s.logger.Warn(fmt.Sprintf("Notification failed for %s: %s", evt.URL, evt.Note), zap.String("reason", evt.Reason))
	}
}

// Close implements the Sink interface; it flushes the logger.
func (s *LogSink) Close(context.Context) error {
	// Sync on stdout/stderr fails on some platforms; nothing to recover.
	_ = s.logger.Sync()
	return nil
}

func displayName(evt progress.Event) string {
	if evt.Title != "" {
		return evt.Title
	}
	return evt.URL
}
