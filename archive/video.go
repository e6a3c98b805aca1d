package archive

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/UberHobber/UBH-Chonkers-Bot/chatreplay"
	"github.com/UberHobber/UBH-Chonkers-Bot/db"
	"github.com/UberHobber/UBH-Chonkers-Bot/fingerprint"
	"github.com/UberHobber/UBH-Chonkers-Bot/normalize"
	"github.com/UberHobber/UBH-Chonkers-Bot/telemetry"
)

// ProcessVideo runs the per-video state machine: skip if already processed,
// sync metadata and thumbnail, ingest chat, then decide the processed flag.
func (e *Engine) ProcessVideo(ctx context.Context, videoID string) (Outcome, *ChatStats) {
	ctx, span := telemetry.StartSpan(ctx, "archive", "process_video",
		attribute.String("video_id", videoID))
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "archive"),
		slog.String("video_id", videoID))

	rows, err := db.Query(ctx, e.DB, "videos", []string{"id"},
		map[string]any{"id": videoID, "processed": true})
	if err != nil {
		logger.Error("processed lookup failed", slog.Any("err", err))
		telemetry.RecordError(span, err)
		return e.count(Error), nil
	}
	if len(rows) > 0 {
		logger.Debug("already processed, skipping")
		return e.count(Skipped), nil
	}

	detail, err := e.Video.VideoDetail(ctx, videoID)
	if err != nil {
		logger.Error("detail fetch failed", slog.Any("err", err))
		telemetry.RecordError(span, err)
		return e.count(Error), nil
	}
	if detail == nil {
		logger.Warn("video no longer available from the API")
		return e.count(Unavailable), nil
	}

	rec, err := normalize.Video(detail)
	if err != nil {
		logger.Error("video payload rejected", slog.Any("err", err))
		telemetry.RecordError(span, err)
		return e.count(Error), nil
	}
	if rec.Thumbnail == "" {
		logger.Warn("video has no thumbnail URL")
	}

	if err := e.syncVideoRow(ctx, rec, detail); err != nil {
		logger.Error("metadata sync failed", slog.Any("err", err))
		telemetry.RecordError(span, err)
		return e.count(Error), nil
	}
	e.syncThumbnail(ctx, rec, logger)

	stream, err := e.Chat.Open(ctx, videoID)
	if err != nil {
		return e.count(e.dispatchChatError(ctx, rec, err, logger)), nil
	}
	var stats *ChatStats
	var ingestErr error
	telemetry.TimeFunc(telemetry.ChatIngestDuration, func() {
		stats, ingestErr = e.ingestChat(ctx, videoID, stream)
	})
	if ingestErr != nil {
		return e.count(e.dispatchChatError(ctx, rec, ingestErr, logger)), stats
	}

	if rec.IsLive {
		logger.Info("broadcast still live, leaving unprocessed",
			slog.Int("messages", stats.TotalMessages))
		return e.count(StillLive), stats
	}
	if err := db.UpdateColumn(ctx, e.DB, "videos", "processed", true, "id", videoID); err != nil {
		logger.Error("processed flag update failed", slog.Any("err", err))
		telemetry.RecordError(span, err)
		return e.count(Error), stats
	}
	telemetry.SetSpanSuccess(span)
	return e.count(Processed), stats
}

// dispatchChatError maps a chat source failure onto an outcome. A missing
// replay is terminal (the chat will never exist) unless the broadcast is
// still live, in which case a later run retries.
func (e *Engine) dispatchChatError(ctx context.Context, rec *normalize.VideoRecord, err error, logger *slog.Logger) Outcome {
	switch {
	case errors.Is(err, chatreplay.ErrNoChatReplay):
		logger.Warn("no chat replay for video")
		if !rec.IsLive {
			if uerr := db.UpdateColumn(ctx, e.DB, "videos", "processed", true, "id", rec.ID); uerr != nil {
				logger.Error("processed flag update failed", slog.Any("err", uerr))
				return Error
			}
		}
		return NoChat
	case errors.Is(err, chatreplay.ErrVideoUnplayable):
		logger.Warn("video unplayable", slog.Any("err", err))
		return Unavailable
	default:
		logger.Error("chat ingestion failed", slog.Any("err", err))
		return Error
	}
}

// syncVideoRow classifies the detail payload and applies the matching store
// write: insert for a new video, column-wise update for a changed one,
// nothing for an unchanged one. The payload file commits either way.
func (e *Engine) syncVideoRow(ctx context.Context, rec *normalize.VideoRecord, detail []byte) error {
	key := rec.ID + ".json"
	c, err := e.Assets.Classify(key, detail)
	if err != nil {
		return err
	}
	switch c {
	case fingerprint.New:
		if err := db.Insert(ctx, e.DB, "videos", []map[string]any{rec.Row()}, "id"); err != nil {
			return err
		}
	case fingerprint.Changed:
		row := rec.Row()
		cols := make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for _, col := range cols {
			if err := db.UpdateColumn(ctx, e.DB, "videos", col, row[col], "id", rec.ID); err != nil {
				return err
			}
		}
	}
	return e.commitAsset(e.Assets, key, detail)
}

func (e *Engine) syncThumbnail(ctx context.Context, rec *normalize.VideoRecord, logger *slog.Logger) {
	if rec.Thumbnail == "" {
		return
	}
	data, err := e.fetch(ctx, rec.Thumbnail)
	if err != nil {
		logger.Warn("thumbnail download failed", slog.Any("err", err))
		return
	}
	if err := e.commitAsset(e.Assets, rec.ID+"_Thumbnail.jpg", data); err != nil {
		logger.Warn("thumbnail commit failed", slog.Any("err", err))
	}
}

func (e *Engine) count(o Outcome) Outcome {
	switch o {
	case Skipped:
		telemetry.AddCounter(telemetry.VideosSkipped, 1)
	case Processed:
		telemetry.AddCounter(telemetry.VideosProcessed, 1)
	case StillLive:
		telemetry.AddCounter(telemetry.VideosStillLive, 1)
	case NoChat:
		telemetry.AddCounter(telemetry.VideosNoChat, 1)
	case Unavailable:
		telemetry.AddCounter(telemetry.VideosUnavailable, 1)
	case Error:
		telemetry.AddCounter(telemetry.VideosErrored, 1)
	}
	return o
}
