package normalize

import (
	"testing"
	"time"
)

func TestMessageFlattening(t *testing.T) {
	raw := []byte(`{
		"message_id": "msg1",
		"message": "hello world",
		"timestamp": 1709294400123456,
		"time_in_seconds": 42.5,
		"message_type": "text_message",
		"author": {
			"id": "UCuser1",
			"name": "viewer",
			"badges": [{"title": "Member (6 months)"}]
		}
	}`)
	rec, emotes, err := Message(raw, "vid123")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if rec.MessageID != "msg1" || rec.VideoID != "vid123" {
		t.Errorf("identity = %q/%q", rec.MessageID, rec.VideoID)
	}
	want := time.UnixMicro(1709294400123456).UTC()
	if !rec.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, want)
	}
	if rec.TimeInSeconds != 42.5 {
		t.Errorf("time_in_seconds = %v", rec.TimeInSeconds)
	}
	if rec.MemberMonths != 6 {
		t.Errorf("member months = %d, want 6", rec.MemberMonths)
	}
	if len(emotes) != 0 {
		t.Errorf("unexpected emotes: %v", emotes)
	}
}

func TestMemberMonths(t *testing.T) {
	cases := []struct {
		badges string
		want   int
	}{
		{`[{"title": "New member"}]`, 0},
		{`[{"title": "Member (1 month)"}]`, 1},
		{`[{"title": "Member (11 months)"}]`, 11},
		{`[{"title": "Member (1 year)"}]`, 12},
		{`[{"title": "Member (2 years)"}]`, 24},
		{`[{"title": "Moderator"}]`, -1},
		{`[]`, -1},
		// tenure reads only the first badge even when a later one carries it
		{`[{"title": "Moderator"}, {"title": "Member (3 months)"}]`, -1},
		{`[{"title": "Member (3 months)"}, {"title": "Moderator"}]`, 3},
	}
	for _, tc := range cases {
		raw := []byte(`{"message_id":"m","author":{"id":"u","badges":` + tc.badges + `}}`)
		rec, _, err := Message(raw, "v")
		if err != nil {
			t.Fatalf("Message(%s): %v", tc.badges, err)
		}
		if rec.MemberMonths != tc.want {
			t.Errorf("badges %s: months = %d, want %d", tc.badges, rec.MemberMonths, tc.want)
		}
	}
}

func TestMessageNoBadges(t *testing.T) {
	raw := []byte(`{"message_id":"m","author":{"id":"u","name":"n"}}`)
	rec, _, err := Message(raw, "v")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if rec.MemberMonths != -1 {
		t.Errorf("months = %d, want -1", rec.MemberMonths)
	}
	if rec.IsModerator || rec.IsVerified || rec.IsOwner {
		t.Errorf("role flags set without badges")
	}
}

func TestRoleFlagsTrackLastBadge(t *testing.T) {
	// Only the last badge determines the role columns. A moderator whose
	// membership badge comes after the Moderator badge is stored with
	// ismoderator=false.
	raw := []byte(`{"message_id":"m","author":{"id":"u","badges":[
		{"title": "Moderator"},
		{"title": "Member (2 months)"}
	]}}`)
	rec, _, err := Message(raw, "v")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if rec.IsModerator {
		t.Errorf("ismoderator = true, want false (membership badge is last)")
	}

	raw = []byte(`{"message_id":"m","author":{"id":"u","badges":[
		{"title": "Member (2 months)"},
		{"title": "Owner"}
	]}}`)
	rec, _, err = Message(raw, "v")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if !rec.IsOwner {
		t.Errorf("isowner = false, want true (Owner badge is last)")
	}
}

func TestMessageMoney(t *testing.T) {
	raw := []byte(`{
		"message_id": "sc1",
		"message": "thanks for the stream",
		"message_type": "paid_message",
		"author": {"id": "u"},
		"money": {"amount": 49.99, "currency": "USD", "currency_symbol": "$"},
		"header_background_colour": "#ffca28"
	}`)
	rec, _, err := Message(raw, "v")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if rec.Amount == nil || *rec.Amount != 49.99 {
		t.Errorf("amount = %v", rec.Amount)
	}
	if rec.Currency != "USD" || rec.Symbol != "$" {
		t.Errorf("currency = %q/%q", rec.Currency, rec.Symbol)
	}
	if rec.Color != "#ffca28" {
		t.Errorf("color = %q", rec.Color)
	}
}

func TestMessageNoMoneyLeavesAmountNil(t *testing.T) {
	rec, _, err := Message([]byte(`{"message_id":"m"}`), "v")
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if rec.Amount != nil {
		t.Errorf("amount = %v, want nil", *rec.Amount)
	}
}

func TestEmoteImagePreference(t *testing.T) {
	cases := []struct {
		images string
		want   string
	}{
		// source beats everything regardless of order
		{`[{"id":"24x24","url":"small"},{"id":"source","url":"orig"},{"id":"48x48","url":"mid"}]`, "orig"},
		// 48x48 accepted when reached before source
		{`[{"id":"16x16","url":"tiny"},{"id":"48x48","url":"mid"}]`, "mid"},
		{`[{"id":"24x24","url":"small"},{"id":"512x512","url":"big"}]`, "small"},
		// nothing preferred keeps the last image
		{`[{"id":"16x16","url":"tiny"},{"id":"512x512","url":"big"}]`, "big"},
		{`[]`, ""},
	}
	for _, tc := range cases {
		raw := []byte(`{"message_id":"m","emotes":[{"id":"e1","name":":wave:","is_custom_emoji":true,"images":` + tc.images + `}]}`)
		_, emotes, err := Message(raw, "v")
		if err != nil {
			t.Fatalf("Message: %v", err)
		}
		if len(emotes) != 1 {
			t.Fatalf("emote count = %d", len(emotes))
		}
		if emotes[0].URL != tc.want {
			t.Errorf("images %s: url = %q, want %q", tc.images, emotes[0].URL, tc.want)
		}
		if !emotes[0].Custom || emotes[0].Name != ":wave:" {
			t.Errorf("emote fields = %+v", emotes[0])
		}
	}
}

func TestMessageMissingID(t *testing.T) {
	if _, _, err := Message([]byte(`{"message":"no id"}`), "v"); err == nil {
		t.Error("expected error for missing message_id")
	}
}
