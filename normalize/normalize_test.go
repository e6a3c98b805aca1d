package normalize

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "2024-03-01T12:00:00Z", want: "2024-03-01T12:00:00.000000Z"},
		{in: "2024-03-01T12:00:00", want: "2024-03-01T12:00:00.000000Z"},
		{in: "2024-03-01T12:00:00.5Z", want: "2024-03-01T12:00:00.500000Z"},
		{in: "2024-03-01T12:00:00.123456Z", want: "2024-03-01T12:00:00.123456Z"},
		{in: "2024-03-01T12:00:00.123Z", want: "2024-03-01T12:00:00.123000Z"},
		{in: "not a timestamp", err: true},
		{in: "2024-03-01 12:00:00", err: true},
		{in: "", err: true},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in)
		if tc.err {
			if err == nil {
				t.Errorf("ParseTimestamp(%q): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tc.in, err)
			continue
		}
		want, _ := time.Parse("2006-01-02T15:04:05.000000Z", tc.want)
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tc.in, got, want)
		}
	}
}

func TestVideoFlattening(t *testing.T) {
	raw := []byte(`{
		"id": "vid123",
		"snippet": {
			"publishedAt": "2024-03-01T12:00:00Z",
			"title": "Stream Archive",
			"liveBroadcastContent": "none",
			"thumbnails": {
				"default": {"url": "https://i.ytimg.com/default.jpg"},
				"high": {"url": "https://i.ytimg.com/high.jpg"},
				"maxres": {"url": "https://i.ytimg.com/maxres.jpg"}
			}
		},
		"liveStreamingDetails": {
			"scheduledStartTime": "2024-03-01T11:00:00Z",
			"actualStartTime": "2024-03-01T11:02:13Z",
			"actualEndTime": "2024-03-01T13:45:00Z"
		}
	}`)
	rec, err := Video(raw)
	if err != nil {
		t.Fatalf("Video: %v", err)
	}
	if rec.ID != "vid123" || rec.Title != "Stream Archive" {
		t.Errorf("identity = %q/%q", rec.ID, rec.Title)
	}
	if rec.Livestream || rec.IsLive {
		t.Errorf("liveBroadcastContent=none must not mark livestream")
	}
	if rec.Thumbnail != "https://i.ytimg.com/maxres.jpg" {
		t.Errorf("thumbnail = %q, want maxres", rec.Thumbnail)
	}
	if rec.StartTime == nil || rec.StartTime.Hour() != 11 {
		t.Errorf("start_time = %v", rec.StartTime)
	}
}

func TestVideoLiveStates(t *testing.T) {
	cases := []struct {
		lbc            string
		stream, islive bool
	}{
		{"none", false, false},
		{"live", true, true},
		{"upcoming", true, false},
		{"", false, false},
	}
	for _, tc := range cases {
		raw := []byte(`{"id":"v1","snippet":{"title":"t","liveBroadcastContent":"` + tc.lbc + `"}}`)
		rec, err := Video(raw)
		if err != nil {
			t.Fatalf("Video(%q): %v", tc.lbc, err)
		}
		if rec.Livestream != tc.stream || rec.IsLive != tc.islive {
			t.Errorf("lbc=%q: livestream=%v islive=%v, want %v/%v",
				tc.lbc, rec.Livestream, rec.IsLive, tc.stream, tc.islive)
		}
	}
}

func TestVideoThumbnailFallback(t *testing.T) {
	raw := []byte(`{"id":"v1","snippet":{"thumbnails":{
		"default":{"url":"d.jpg"},"medium":{"url":"m.jpg"}}}}`)
	rec, err := Video(raw)
	if err != nil {
		t.Fatalf("Video: %v", err)
	}
	if rec.Thumbnail != "m.jpg" {
		t.Errorf("thumbnail = %q, want m.jpg", rec.Thumbnail)
	}
}

func TestVideoMissingID(t *testing.T) {
	if _, err := Video([]byte(`{"snippet":{"title":"no id"}}`)); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestVideoBadTimestampFails(t *testing.T) {
	raw := []byte(`{"id":"v1","snippet":{"publishedAt":"West of Wednesday"}}`)
	if _, err := Video(raw); err == nil {
		t.Error("expected error for malformed publishedAt")
	}
}
