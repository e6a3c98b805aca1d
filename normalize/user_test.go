package normalize

import "testing"

func TestUserFlattening(t *testing.T) {
	raw := []byte(`{
		"id": "UCabc",
		"snippet": {
			"title": "Some Viewer",
			"customUrl": "@someviewer",
			"publishedAt": "2019-07-15T08:30:00Z",
			"country": "CA",
			"thumbnails": {
				"default": {"url": "d.jpg"},
				"high": {"url": "h.jpg"}
			}
		},
		"statistics": {"viewCount": "12345", "subscriberCount": "67"}
	}`)
	rec, err := User(raw)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if rec.ID != "UCabc" || rec.LatestName != "Some Viewer" || rec.CustomURL != "@someviewer" {
		t.Errorf("identity = %+v", rec)
	}
	if rec.Region != "CA" {
		t.Errorf("region = %q", rec.Region)
	}
	if rec.Created == nil || rec.Created.Year() != 2019 {
		t.Errorf("created = %v", rec.Created)
	}
	if rec.PFP != "h.jpg" {
		t.Errorf("pfp = %q, want high rendition", rec.PFP)
	}
	if rec.ViewCount == nil || *rec.ViewCount != 12345 {
		t.Errorf("viewcount = %v", rec.ViewCount)
	}
	if rec.Subscribers == nil || *rec.Subscribers != 67 {
		t.Errorf("subscribers = %v", rec.Subscribers)
	}
}

func TestUserHiddenStats(t *testing.T) {
	// Channels can hide subscriber counts; the fields come back empty.
	raw := []byte(`{"id":"UCx","snippet":{"title":"n"},"statistics":{"viewCount":""}}`)
	rec, err := User(raw)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if rec.ViewCount != nil || rec.Subscribers != nil {
		t.Errorf("hidden stats should stay nil: %v %v", rec.ViewCount, rec.Subscribers)
	}
}

func TestUserMissingID(t *testing.T) {
	if _, err := User([]byte(`{"snippet":{"title":"no id"}}`)); err == nil {
		t.Error("expected error for missing id")
	}
}
