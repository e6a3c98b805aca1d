// Package archive drives the incremental synchronization run: list the
// playlist, bring every video's metadata, thumbnail, and chat replay into the
// store, then enrich the user ids collected along the way. Each run is
// idempotent; everything already stored is detected and skipped.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/UberHobber/UBH-Chonkers-Bot/chatreplay"
	"github.com/UberHobber/UBH-Chonkers-Bot/db"
	"github.com/UberHobber/UBH-Chonkers-Bot/fingerprint"
	"github.com/UberHobber/UBH-Chonkers-Bot/telemetry"
)

// VideoSource lists the playlist and fetches per-video detail payloads.
// VideoDetail returns (nil, nil) for a video the remote no longer knows.
type VideoSource interface {
	PlaylistItems(ctx context.Context) (ids []string, snapshot []byte, err error)
	VideoDetail(ctx context.Context, videoID string) ([]byte, error)
}

// ChatSource opens the chat replay for a video.
type ChatSource interface {
	Open(ctx context.Context, videoID string) (chatreplay.Stream, error)
}

// UserSource fetches channel payloads for up to 50 ids per call.
type UserSource interface {
	Channels(ctx context.Context, ids []string) ([][]byte, error)
}

// Outcome is the terminal state of one video in a run.
type Outcome int

const (
	// Skipped means a fully processed row already existed.
	Skipped Outcome = iota
	// Processed means metadata and chat went in and the row is final.
	Processed
	// StillLive means the broadcast is ongoing; the row stays unprocessed
	// so a later run re-polls it.
	StillLive
	// NoChat means the video has no chat replay; the row is final.
	NoChat
	// Unavailable means the remote refused the video; retried next run.
	Unavailable
	// Error means an unexpected failure; retried next run.
	Error
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Processed:
		return "processed"
	case StillLive:
		return "still_live"
	case NoChat:
		return "no_chat"
	case Unavailable:
		return "unavailable"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Engine wires the sources, stores, and knobs for one archive target.
type Engine struct {
	DB    *sql.DB
	Video VideoSource
	Chat  ChatSource
	Users UserSource

	// Assets holds per-video JSON, thumbnails, and the playlist snapshot.
	Assets *fingerprint.Store
	// UserAssets holds per-user JSON and profile pictures (users/ subdir).
	UserAssets *fingerprint.Store

	// Fetch downloads binary assets. Defaults to a plain HTTP GET.
	Fetch func(ctx context.Context, url string) ([]byte, error)

	// BatchSize caps user enrichment batches; the remote accepts at most 50.
	BatchSize int
}

func (e *Engine) fetch(ctx context.Context, url string) ([]byte, error) {
	if e.Fetch != nil {
		return e.Fetch(ctx, url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

// Run performs one full synchronization pass. Per-video failures become
// statistics and log lines; only listing failures abort the run.
func (e *Engine) Run(ctx context.Context) (*RunStats, error) {
	runID := uuid.NewString()
	ctx = telemetry.WithCorrelation(ctx, runID)
	ctx, span := telemetry.StartSpan(ctx, "archive", "sync_run")
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "archive"))

	if telemetry.SyncRuns != nil {
		telemetry.SyncRuns.Inc()
	}
	start := time.Now()
	_ = db.SetKV(ctx, e.DB, "sync_last_run", start.UTC().Format(time.RFC3339))

	ids, snapshot, err := e.Video.PlaylistItems(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list playlist: %w", err)
	}
	logger.Info("playlist listed", slog.Int("videos", len(ids)))
	if err := e.commitAsset(e.Assets, "__Video_Playlist.json", snapshot); err != nil {
		logger.Warn("playlist snapshot write failed", slog.Any("err", err))
	}

	stats := &RunStats{}
	for _, id := range ids {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		outcome, chat := e.ProcessVideo(ctx, id)
		stats.Record(outcome)
		if chat != nil {
			chat.Merge(&stats.Chat)
		}
		logger.Info("video finished",
			slog.String("video_id", id),
			slog.String("outcome", outcome.String()))
	}

	if err := e.EnrichUsers(ctx, stats); err != nil {
		logger.Warn("user enrichment incomplete", slog.Any("err", err))
	}

	e.recordPending(ctx)
	dur := time.Since(start)
	if telemetry.SyncRunDuration != nil {
		telemetry.SyncRunDuration.Observe(dur.Seconds())
	}
	if summary, err := json.Marshal(stats.Videos); err == nil {
		_ = db.SetKV(ctx, e.DB, "sync_last_summary", string(summary))
	}
	telemetry.SetSpanSuccess(span)
	span.SetAttributes(attribute.Int("videos", len(ids)))
	logger.Info("run complete",
		slog.Duration("duration", dur),
		slog.Int("processed", stats.Videos.Processed),
		slog.Int("skipped", stats.Videos.Skipped),
		slog.Int("still_live", stats.Videos.StillLive),
		slog.Int("no_chat", stats.Videos.NoChat),
		slog.Int("unavailable", stats.Videos.Unavailable),
		slog.Int("errors", stats.Videos.Errors),
		slog.Int("new_messages", stats.Chat.NewMessages))
	return stats, nil
}

// commitAsset classifies then commits, counting rotations.
func (e *Engine) commitAsset(store *fingerprint.Store, key string, data []byte) error {
	c, err := store.Classify(key, data)
	if err != nil {
		return err
	}
	switch c {
	case fingerprint.Unchanged:
		return nil
	case fingerprint.Changed:
		if telemetry.RevisionsRotated != nil {
			telemetry.RevisionsRotated.Inc()
		}
	}
	return store.Commit(key, data)
}

func (e *Engine) recordPending(ctx context.Context) {
	var videos, users int
	_ = e.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM videos WHERE COALESCE(processed,false)=false`).Scan(&videos)
	_ = e.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM user_ids WHERE COALESCE(processed,false)=false`).Scan(&users)
	telemetry.SetPendingVideos(videos)
	telemetry.SetPendingUsers(users)
}
