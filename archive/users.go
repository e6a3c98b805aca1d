package archive

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/UberHobber/UBH-Chonkers-Bot/db"
	"github.com/UberHobber/UBH-Chonkers-Bot/normalize"
	"github.com/UberHobber/UBH-Chonkers-Bot/telemetry"
)

const maxUserBatch = 50

// EnrichUsers looks up every unprocessed user id in fixed-size batches and
// fills in the profile columns. Ids the remote no longer returns are marked
// invalid. Batches are independent; one failing batch does not stop the rest.
func (e *Engine) EnrichUsers(ctx context.Context, stats *RunStats) error {
	ctx, span := telemetry.StartSpan(ctx, "archive", "enrich_users")
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "archive"))

	rows, err := db.Query(ctx, e.DB, "user_ids", []string{"id"}, map[string]any{"processed": false})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	var pending []string
	for _, row := range rows {
		if id, ok := row["id"].(string); ok && id != "" {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	batchSize := e.BatchSize
	if batchSize <= 0 || batchSize > maxUserBatch {
		batchSize = maxUserBatch
	}
	logger.Info("enriching users", slog.Int("pending", len(pending)), slog.Int("batch_size", batchSize))
	span.SetAttributes(attribute.Int("pending", len(pending)))

	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.enrichBatch(ctx, pending[start:end], stats, logger)
	}
	return nil
}

func (e *Engine) enrichBatch(ctx context.Context, batch []string, stats *RunStats, logger *slog.Logger) {
	payloads, err := e.Users.Channels(ctx, batch)
	if err != nil {
		logger.Warn("user batch lookup failed", slog.Any("err", err), slog.Int("batch", len(batch)))
		return
	}

	valid := make(map[string]bool, len(payloads))
	for _, raw := range payloads {
		rec, err := normalize.User(raw)
		if err != nil {
			logger.Warn("user payload rejected", slog.Any("err", err))
			continue
		}
		if rec.PFP == "" {
			logger.Warn("user has no profile picture URL", slog.String("user_id", rec.ID))
		}
		if err := e.commitAsset(e.UserAssets, rec.ID+".json", raw); err != nil {
			logger.Warn("user payload commit failed", slog.String("user_id", rec.ID), slog.Any("err", err))
		}
		e.syncProfilePicture(ctx, rec, logger)

		failed := false
		for _, col := range rec.Columns() {
			if err := db.UpdateColumn(ctx, e.DB, "user_ids", col.Name, col.Value, "id", rec.ID); err != nil {
				logger.Error("user column update failed",
					slog.String("user_id", rec.ID), slog.String("column", col.Name), slog.Any("err", err))
				failed = true
				break
			}
		}
		if failed {
			continue
		}
		if err := db.UpdateColumn(ctx, e.DB, "user_ids", "processed", true, "id", rec.ID); err != nil {
			logger.Error("user processed flag failed", slog.String("user_id", rec.ID), slog.Any("err", err))
			continue
		}
		valid[rec.ID] = true
		telemetry.AddCounter(telemetry.UsersEnriched, 1)
	}

	// Whatever the remote dropped from the response no longer exists.
	for _, id := range batch {
		if valid[id] {
			continue
		}
		if err := db.UpdateColumn(ctx, e.DB, "user_ids", "exists", false, "id", id); err != nil {
			logger.Error("user invalidation failed", slog.String("user_id", id), slog.Any("err", err))
			continue
		}
		if err := db.UpdateColumn(ctx, e.DB, "user_ids", "processed", true, "id", id); err != nil {
			logger.Error("user processed flag failed", slog.String("user_id", id), slog.Any("err", err))
			continue
		}
		stats.Chat.InvalidUsers++
		telemetry.AddCounter(telemetry.UsersInvalid, 1)
	}
}

func (e *Engine) syncProfilePicture(ctx context.Context, rec *normalize.UserRecord, logger *slog.Logger) {
	if rec.PFP == "" {
		return
	}
	data, err := e.fetch(ctx, rec.PFP)
	if err != nil {
		logger.Warn("profile picture download failed", slog.String("user_id", rec.ID), slog.Any("err", err))
		return
	}
	if err := e.commitAsset(e.UserAssets, rec.ID+"_pfp.jpg", data); err != nil {
		logger.Warn("profile picture commit failed", slog.String("user_id", rec.ID), slog.Any("err", err))
	}
}
