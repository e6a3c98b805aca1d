package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/UberHobber/UBH-Chonkers-Bot/chatreplay"
)

// mergeRecoveryFile writes collected messages into the per-video messages
// file, merged with any prior content. Existing messages keep their order;
// new ones append, deduplicated by message_id. The write goes through a temp
// file and rename.
func (e *Engine) mergeRecoveryFile(videoID string, collected []json.RawMessage) error {
	if len(collected) == 0 {
		return nil
	}
	path := e.Assets.Path(videoID + "_Messages.json")

	var all []json.RawMessage
	seen := make(map[string]bool)
	if prior, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(prior, &all); err != nil {
			return fmt.Errorf("recovery file %s corrupt: %w", path, err)
		}
		for _, raw := range all {
			if id := messageID(raw); id != "" {
				seen[id] = true
			}
		}
	}
	for _, raw := range collected {
		id := messageID(raw)
		if id != "" && seen[id] {
			continue
		}
		seen[id] = true
		all = append(all, raw)
	}

	data, err := json.MarshalIndent(all, "", "    ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func messageID(raw json.RawMessage) string {
	var probe struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.MessageID
}

// IngestRecoveryFile re-drives chat ingestion for a video from its on-disk
// messages file instead of the remote source. Idempotent against the store:
// every message already inserted counts as existing.
func (e *Engine) IngestRecoveryFile(ctx context.Context, videoID string) (*ChatStats, error) {
	path := e.Assets.Path(videoID + "_Messages.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recovery file: %w", err)
	}
	var messages []json.RawMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("recovery file %s corrupt: %w", path, err)
	}
	return e.ingestChat(ctx, videoID, &fileStream{messages: messages})
}

// fileStream replays an in-memory message slice as a chat stream.
type fileStream struct {
	messages []json.RawMessage
	pos      int
}

var _ chatreplay.Stream = (*fileStream)(nil)

func (f *fileStream) Next(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.pos >= len(f.messages) {
		return nil, io.EOF
	}
	msg := f.messages[f.pos]
	f.pos++
	return msg, nil
}

func (f *fileStream) Close() error { return nil }
