package youtubeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

func testService(t *testing.T, handler http.Handler) (*yt.Service, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	svc, err := yt.NewService(context.Background(),
		option.WithEndpoint(srv.URL),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		srv.Close()
		t.Fatalf("service: %v", err)
	}
	return svc, srv.Close
}

func TestPlaylistItemsPaging(t *testing.T) {
	page := func(ids []string, next string) string {
		items := make([]map[string]any, len(ids))
		for i, id := range ids {
			items[i] = map[string]any{
				"kind":           "youtube#playlistItem",
				"etag":           "etag-" + id,
				"id":             "pl-" + id,
				"contentDetails": map[string]any{"videoId": id},
			}
		}
		resp := map[string]any{"items": items}
		if next != "" {
			resp["nextPageToken"] = next
		}
		b, _ := json.Marshal(resp)
		return string(b)
	}

	svc, closeFn := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "playlistItems") {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("pageToken") {
		case "":
			fmt.Fprint(w, page([]string{"v1", "v2"}, "tok2"))
		case "tok2":
			fmt.Fprint(w, page([]string{"v3"}, ""))
		default:
			http.Error(w, "bad token", http.StatusBadRequest)
		}
	}))
	defer closeFn()

	ds := &DataSource{API: svc, PlaylistID: "UUabc"}
	ids, snapshot, err := ds.PlaylistItems(context.Background())
	if err != nil {
		t.Fatalf("PlaylistItems: %v", err)
	}
	if len(ids) != 3 || ids[0] != "v1" || ids[2] != "v3" {
		t.Errorf("ids = %v", ids)
	}
	if strings.Contains(string(snapshot), "youtube#playlistItem") {
		t.Errorf("snapshot still carries envelope kind: %s", snapshot)
	}
	if strings.Contains(string(snapshot), "etag-v1") {
		t.Errorf("snapshot still carries etag")
	}
}

func TestVideoDetailAbsent(t *testing.T) {
	svc, closeFn := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": []}`)
	}))
	defer closeFn()

	ds := &DataSource{API: svc}
	raw, err := ds.VideoDetail(context.Background(), "gone")
	if err != nil {
		t.Fatalf("VideoDetail: %v", err)
	}
	if raw != nil {
		t.Errorf("absent video should return nil payload, got %s", raw)
	}
}

func TestVideoDetailStripsEnvelope(t *testing.T) {
	svc, closeFn := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[{"kind":"youtube#video","etag":"e1","id":"v1","snippet":{"title":"hello"}}]}`)
	}))
	defer closeFn()

	ds := &DataSource{API: svc}
	raw, err := ds.VideoDetail(context.Background(), "v1")
	if err != nil {
		t.Fatalf("VideoDetail: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m["id"] != "v1" {
		t.Errorf("id = %v", m["id"])
	}
	if _, ok := m["kind"]; ok {
		t.Errorf("kind survived: %s", raw)
	}
	if _, ok := m["etag"]; ok {
		t.Errorf("etag survived: %s", raw)
	}
}

func TestChannelsBatchLimit(t *testing.T) {
	ds := &DataSource{}
	ids := make([]string, 51)
	for i := range ids {
		ids[i] = fmt.Sprintf("UC%d", i)
	}
	if _, err := ds.Channels(context.Background(), ids); err == nil {
		t.Error("expected error for oversized batch")
	}
	if got, err := ds.Channels(context.Background(), nil); err != nil || got != nil {
		t.Errorf("empty batch = %v, %v", got, err)
	}
}
