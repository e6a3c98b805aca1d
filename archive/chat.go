package archive

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/UberHobber/UBH-Chonkers-Bot/chatreplay"
	"github.com/UberHobber/UBH-Chonkers-Bot/db"
	"github.com/UberHobber/UBH-Chonkers-Bot/nickname"
	"github.com/UberHobber/UBH-Chonkers-Bot/normalize"
	"github.com/UberHobber/UBH-Chonkers-Bot/telemetry"
)

// ingestChat pulls messages off the stream one at a time and commits each to
// the store. Every message that made it through is flushed to the recovery
// file before any error propagates, so a crash mid-stream loses nothing
// already fetched. A message that fails is not flushed; the store never saw
// it either.
func (e *Engine) ingestChat(ctx context.Context, videoID string, stream chatreplay.Stream) (*ChatStats, error) {
	defer stream.Close()
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("component", "archive"),
		slog.String("video_id", videoID))

	stats := &ChatStats{ExistUserIDs: make(map[string]bool)}
	var collected []json.RawMessage
	flush := func() {
		if err := e.mergeRecoveryFile(videoID, collected); err != nil {
			logger.Error("recovery file write failed", slog.Any("err", err))
		}
	}

	for {
		raw, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			flush()
			return stats, err
		}
		stats.TotalMessages++
		if err := e.processMessage(ctx, videoID, raw, stats); err != nil {
			flush()
			return stats, err
		}
		collected = append(collected, raw)
	}
	flush()

	telemetry.AddCounter(telemetry.MessagesIngested, stats.NewMessages)
	telemetry.AddCounter(telemetry.MessagesDuplicate, stats.ExistingMessages)
	logger.Info("chat ingested",
		slog.Int("total", stats.TotalMessages),
		slog.Int("new", stats.NewMessages),
		slog.Int("existing", stats.ExistingMessages),
		slog.Int("new_users", stats.NewUserIDs),
		slog.Int("existing_users", len(stats.ExistUserIDs)))
	return stats, nil
}

// processMessage commits one message: user stub, emotes, the message row,
// and nickname matches when the message is new to the store.
func (e *Engine) processMessage(ctx context.Context, videoID string, raw json.RawMessage, stats *ChatStats) error {
	rec, emotes, err := normalize.Message(raw, videoID)
	if err != nil {
		return err
	}

	if rec.UserID != "" {
		existing, err := db.Query(ctx, e.DB, "user_ids", []string{"id"}, map[string]any{"id": rec.UserID})
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			if err := db.Insert(ctx, e.DB, "user_ids", []map[string]any{{"id": rec.UserID}}, "id"); err != nil {
				return err
			}
			stats.NewUserIDs++
		} else {
			stats.ExistUserIDs[rec.UserID] = true
		}
	}

	if len(emotes) > 0 {
		rows := make([]map[string]any, len(emotes))
		for i, em := range emotes {
			rows[i] = em.Row()
		}
		if err := db.Insert(ctx, e.DB, "emotes", rows, "id"); err != nil {
			return err
		}
	}

	existing, err := db.Query(ctx, e.DB, "messages", []string{"message_id"}, map[string]any{"message_id": rec.MessageID})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		stats.ExistingMessages++
		return nil
	}
	if err := db.Insert(ctx, e.DB, "messages", []map[string]any{rec.Row()}, "message_id"); err != nil {
		return err
	}
	stats.NewMessages++

	return e.indexNicknames(ctx, rec)
}

// indexNicknames matches the current alias dictionary against a newly stored
// message. Aliases reload per message so edits made while a long ingest runs
// take effect immediately.
func (e *Engine) indexNicknames(ctx context.Context, rec *normalize.MessageRecord) error {
	if rec.Message == "" {
		return nil
	}
	rows, err := db.Query(ctx, e.DB, "nicknames", []string{"nickname"}, nil)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	aliases := make([]string, 0, len(rows))
	for _, row := range rows {
		if s, ok := row["nickname"].(string); ok && s != "" {
			aliases = append(aliases, s)
		}
	}
	matches := nickname.Find(rec.Message, aliases)
	if len(matches) == 0 {
		return nil
	}
	entries := make([]map[string]any, len(matches))
	for i, m := range matches {
		entries[i] = map[string]any{
			"message_id":       rec.MessageID,
			"matched_nickname": m.Alias,
			"index_start":      m.Start,
			"index_end":        m.End,
		}
	}
	if err := db.Insert(ctx, e.DB, "nickname_matches", entries, "message_id,index_start,index_end"); err != nil {
		return err
	}
	telemetry.AddCounter(telemetry.NicknameMatches, len(matches))
	return nil
}
