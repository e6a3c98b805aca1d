package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/UberHobber/UBH-Chonkers-Bot/db"
)

// HandleStatus reports archive progress: queue depths per table plus the
// timestamp and summary of the last synchronization run.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{}

	var pendingVideos, processedVideos, liveVideos int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos WHERE COALESCE(processed,false)=false`).Scan(&pendingVideos)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos WHERE COALESCE(processed,false)=true`).Scan(&processedVideos)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos WHERE COALESCE(islive,false)=true`).Scan(&liveVideos)
	resp["videos"] = map[string]int{
		"pending":   pendingVideos,
		"processed": processedVideos,
		"live":      liveVideos,
	}

	var messages int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&messages)
	resp["messages"] = messages

	var pendingUsers, processedUsers, goneUsers int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_ids WHERE COALESCE(processed,false)=false`).Scan(&pendingUsers)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_ids WHERE COALESCE(processed,false)=true`).Scan(&processedUsers)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_ids WHERE COALESCE("exists",true)=false`).Scan(&goneUsers)
	resp["users"] = map[string]int{
		"pending":   pendingUsers,
		"processed": processedUsers,
		"gone":      goneUsers,
	}

	var nicknames, nicknameMatches int
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nicknames`).Scan(&nicknames)
	_ = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nickname_matches`).Scan(&nicknameMatches)
	resp["nicknames"] = nicknames
	resp["nickname_matches"] = nicknameMatches

	if lastRun, err := db.GetKV(ctx, h.db, "sync_last_run"); err == nil && lastRun != "" {
		resp["last_run"] = lastRun
	}
	if summary, err := db.GetKV(ctx, h.db, "sync_last_summary"); err == nil && summary != "" {
		var decoded map[string]any
		if json.Unmarshal([]byte(summary), &decoded) == nil {
			resp["last_summary"] = decoded
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
