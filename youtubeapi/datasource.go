package youtubeapi

import (
	"context"
	"encoding/json"
	"fmt"

	yt "google.golang.org/api/youtube/v3"
)

const pageSize = 50

// DataSource exposes the API calls the synchronization engine consumes.
// Payloads are returned as indented JSON with the wire-envelope fields
// (kind, etag) stripped, so serialized bytes stay stable across API
// library versions.
type DataSource struct {
	// Service builds an authenticated client per call. Ignored when API
	// is set directly (tests).
	Service *Service
	// PlaylistID is the playlist whose items drive the sync.
	PlaylistID string
	// API overrides the client, mainly for tests.
	API *yt.Service
}

func (d *DataSource) api(ctx context.Context) (*yt.Service, error) {
	if d.API != nil {
		return d.API, nil
	}
	return d.Service.Client(ctx)
}

// PlaylistItems pages through the playlist and returns every video id plus
// an indented JSON snapshot of all playlist items.
func (d *DataSource) PlaylistItems(ctx context.Context) ([]string, []byte, error) {
	svc, err := d.api(ctx)
	if err != nil {
		return nil, nil, err
	}
	var items []*yt.PlaylistItem
	pageToken := ""
	for {
		call := svc.PlaylistItems.List([]string{"contentDetails", "id", "snippet", "status"}).
			PlaylistId(d.PlaylistID).
			MaxResults(pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, nil, fmt.Errorf("list playlist %s: %w", d.PlaylistID, err)
		}
		for _, item := range resp.Items {
			item.Kind = ""
			item.Etag = ""
		}
		items = append(items, resp.Items...)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	snapshot, err := json.MarshalIndent(items, "", "    ")
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
			ids = append(ids, item.ContentDetails.VideoId)
		}
	}
	return ids, snapshot, nil
}

// VideoDetail fetches the full detail payload for one video. A video that
// the API no longer returns (deleted, private) yields nil bytes and nil
// error; the caller decides how to record the absence.
func (d *DataSource) VideoDetail(ctx context.Context, videoID string) ([]byte, error) {
	svc, err := d.api(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Videos.List([]string{"contentDetails", "id", "snippet", "status", "liveStreamingDetails"}).
		Id(videoID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("video detail %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	item := resp.Items[0]
	item.Kind = ""
	item.Etag = ""
	return json.MarshalIndent(item, "", "    ")
}

// Channels fetches channel payloads for up to 50 ids in one call, returning
// one raw payload per channel the API still knows about.
func (d *DataSource) Channels(ctx context.Context, ids []string) ([][]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > pageSize {
		return nil, fmt.Errorf("channel batch of %d exceeds limit %d", len(ids), pageSize)
	}
	svc, err := d.api(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Channels.List([]string{"id", "snippet", "statistics", "status", "brandingSettings"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("channels batch: %w", err)
	}
	out := make([][]byte, 0, len(resp.Items))
	for _, item := range resp.Items {
		item.Kind = ""
		item.Etag = ""
		raw, err := json.MarshalIndent(item, "", "    ")
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
