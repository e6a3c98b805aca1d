package normalize

import (
	"encoding/json"
	"fmt"
	"time"
)

// UserPayload is the shape of a channels.list item.
type UserPayload struct {
	ID      string `json:"id"`
	Snippet *struct {
		Title       string `json:"title"`
		CustomURL   string `json:"customUrl"`
		PublishedAt string `json:"publishedAt"`
		Country     string `json:"country"`
		Thumbnails  map[string]struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"snippet"`
	Statistics *struct {
		ViewCount       string `json:"viewCount"`
		SubscriberCount string `json:"subscriberCount"`
	} `json:"statistics"`
}

// UserRecord is the flattened user_ids enrichment data.
type UserRecord struct {
	ID          string
	LatestName  string
	CustomURL   string
	Created     *time.Time
	ViewCount   *int64
	Subscribers *int64
	Region      string
	PFP         string
}

// Columns returns the enrichment columns in a stable order for column-wise
// updates against an existing user_ids row.
func (u *UserRecord) Columns() []struct {
	Name  string
	Value any
} {
	return []struct {
		Name  string
		Value any
	}{
		{"latest_name", u.LatestName},
		{"custom_url", u.CustomURL},
		{"created", timeOrNil(u.Created)},
		{"viewcount", int64OrNil(u.ViewCount)},
		{"subscribers", int64OrNil(u.Subscribers)},
		{"region", u.Region},
		{"pfp", u.PFP},
	}
}

func int64OrNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// User flattens a raw channels.list item into a UserRecord. A missing id is
// a hard error; statistics counts arrive as strings and parse leniently.
func User(raw []byte) (*UserRecord, error) {
	var p UserPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode user payload: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("user payload missing id")
	}
	rec := &UserRecord{ID: p.ID}
	if s := p.Snippet; s != nil {
		rec.LatestName = s.Title
		rec.CustomURL = s.CustomURL
		rec.Region = s.Country
		var err error
		if rec.Created, err = parseOptional(s.PublishedAt); err != nil {
			return nil, fmt.Errorf("user %s publishedAt: %w", p.ID, err)
		}
		rec.PFP = thumbnailURL(s.Thumbnails)
	}
	if st := p.Statistics; st != nil {
		rec.ViewCount = parseCount(st.ViewCount)
		rec.Subscribers = parseCount(st.SubscriberCount)
	}
	return rec, nil
}

func parseCount(s string) *int64 {
	if s == "" {
		return nil
	}
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return nil
	}
	return &n
}
