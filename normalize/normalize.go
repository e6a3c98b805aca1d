// Package normalize turns raw API and chat payloads into flat database records.
// All rules that flatten nested payloads live here: thumbnail quality selection,
// membership tenure parsing, emote image preference, timestamp handling.
package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

var timestampRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})(?:\.(\d{1,6}))?Z?$`)

// ParseTimestamp accepts API timestamps with or without fractional seconds
// and with or without a trailing Z, normalizing fractions to microseconds.
func ParseTimestamp(s string) (time.Time, error) {
	m := timestampRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid datetime format: %q", s)
	}
	frac := m[2]
	if frac == "" {
		frac = "000000"
	}
	for len(frac) < 6 {
		frac += "0"
	}
	return time.Parse("2006-01-02T15:04:05.000000", m[1]+"."+frac[:6])
}

// thumbnailURL picks the best available rendition, largest first.
func thumbnailURL(sizes map[string]struct {
	URL string `json:"url"`
}) string {
	for _, k := range []string{"maxres", "standard", "high", "medium", "default"} {
		if t, ok := sizes[k]; ok {
			return t.URL
		}
	}
	return ""
}

// VideoPayload is the shape of a videos.list item.
type VideoPayload struct {
	ID      string `json:"id"`
	Snippet *struct {
		PublishedAt          string `json:"publishedAt"`
		Title                string `json:"title"`
		LiveBroadcastContent string `json:"liveBroadcastContent"`
		Thumbnails           map[string]struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"snippet"`
	LiveStreamingDetails *struct {
		ScheduledStartTime string `json:"scheduledStartTime"`
		ActualStartTime    string `json:"actualStartTime"`
		ActualEndTime      string `json:"actualEndTime"`
	} `json:"liveStreamingDetails"`
}

// VideoRecord is the flattened videos row plus fields the engine needs
// (thumbnail URL, live state) that are not columns themselves.
type VideoRecord struct {
	ID             string
	Title          string
	PublishedAt    *time.Time
	Livestream     bool
	IsLive         bool
	ScheduledStart *time.Time
	StartTime      *time.Time
	EndTime        *time.Time
	Thumbnail      string
}

// Row returns the database column map for the videos table.
func (v *VideoRecord) Row() map[string]any {
	return map[string]any{
		"id":              v.ID,
		"title":           v.Title,
		"published_at":    timeOrNil(v.PublishedAt),
		"livestream":      v.Livestream,
		"islive":          v.IsLive,
		"scheduled_start": timeOrNil(v.ScheduledStart),
		"start_time":      timeOrNil(v.StartTime),
		"end_time":        timeOrNil(v.EndTime),
		"thumbnail":       v.Thumbnail,
	}
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func parseOptional(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Video flattens a raw videos.list item into a VideoRecord. Missing identity
// or malformed timestamps are hard errors; the caller must not persist a
// partially parsed video.
func Video(raw []byte) (*VideoRecord, error) {
	var p VideoPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode video payload: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("video payload missing id")
	}
	rec := &VideoRecord{ID: p.ID}
	if p.Snippet != nil {
		rec.Title = p.Snippet.Title
		var err error
		if rec.PublishedAt, err = parseOptional(p.Snippet.PublishedAt); err != nil {
			return nil, fmt.Errorf("video %s publishedAt: %w", p.ID, err)
		}
		// liveBroadcastContent "none" means a plain upload; "live" and
		// "upcoming" both mark the row as a livestream.
		if lbc := p.Snippet.LiveBroadcastContent; lbc != "" && lbc != "none" {
			rec.Livestream = true
			rec.IsLive = lbc == "live"
		}
		rec.Thumbnail = thumbnailURL(p.Snippet.Thumbnails)
	}
	if d := p.LiveStreamingDetails; d != nil {
		var err error
		if rec.ScheduledStart, err = parseOptional(d.ScheduledStartTime); err != nil {
			return nil, fmt.Errorf("video %s scheduledStartTime: %w", p.ID, err)
		}
		if rec.StartTime, err = parseOptional(d.ActualStartTime); err != nil {
			return nil, fmt.Errorf("video %s actualStartTime: %w", p.ID, err)
		}
		if rec.EndTime, err = parseOptional(d.ActualEndTime); err != nil {
			return nil, fmt.Errorf("video %s actualEndTime: %w", p.ID, err)
		}
	}
	return rec, nil
}
