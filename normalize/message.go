package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MessagePayload is the shape of one chat replay message.
type MessagePayload struct {
	MessageID     string  `json:"message_id"`
	Message       string  `json:"message"`
	Timestamp     int64   `json:"timestamp"` // microseconds since epoch
	TimeInSeconds float64 `json:"time_in_seconds"`
	MessageType   string  `json:"message_type"`
	Author        *struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Badges []struct {
			Title string `json:"title"`
		} `json:"badges"`
	} `json:"author"`
	Money *struct {
		Amount         float64 `json:"amount"`
		Currency       string  `json:"currency"`
		CurrencySymbol string  `json:"currency_symbol"`
	} `json:"money"`
	HeaderBackgroundColour string `json:"header_background_colour"`
	Emotes                 []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		IsCustomEmoji bool   `json:"is_custom_emoji"`
		Images        []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"images"`
	} `json:"emotes"`
}

// MessageRecord is the flattened messages row.
type MessageRecord struct {
	MessageID     string
	Message       string
	Timestamp     time.Time
	TimeInSeconds float64
	Type          string
	VideoID       string
	UserID        string
	UserName      string
	MemberMonths  int
	IsModerator   bool
	IsVerified    bool
	IsOwner       bool
	Amount        *float64
	Currency      string
	Symbol        string
	Color         string
}

// EmoteRecord is one emotes row extracted from a message.
type EmoteRecord struct {
	ID     string
	Name   string
	URL    string
	Custom bool
}

func (m *MessageRecord) Row() map[string]any {
	var amount any
	if m.Amount != nil {
		amount = *m.Amount
	}
	return map[string]any{
		"message_id":         m.MessageID,
		"message":            m.Message,
		"timestamp":          m.Timestamp,
		"time_in_seconds":    m.TimeInSeconds,
		"type":               m.Type,
		"video_id":           m.VideoID,
		"user_id":            m.UserID,
		"user_name":          m.UserName,
		"user_member_status": m.MemberMonths,
		"ismoderator":        m.IsModerator,
		"isverified":         m.IsVerified,
		"isowner":            m.IsOwner,
		"amount":             amount,
		"currency":           m.Currency,
		"symbol":             m.Symbol,
		"color":              m.Color,
	}
}

func (e EmoteRecord) Row() map[string]any {
	return map[string]any{
		"id":     e.ID,
		"name":   e.Name,
		"url":    e.URL,
		"custom": e.Custom,
	}
}

var digitsRe = regexp.MustCompile(`\d+`)

// memberMonths derives membership tenure from the first badge only. "New
// member" is zero, month badges carry the count directly, year badges convert
// to months. Anything else means tenure is unknown (-1). Role flags scan all
// badges but tenure does not; the asymmetry matches the stored history.
func memberMonths(badges []struct {
	Title string `json:"title"`
}) int {
	if len(badges) == 0 {
		return -1
	}
	title := badges[0].Title
	switch {
	case title == "New member":
		return 0
	case strings.Contains(title, "month"):
		if d := digitsRe.FindString(title); d != "" {
			n, _ := strconv.Atoi(d)
			return n
		}
	case strings.Contains(title, "year"):
		if d := digitsRe.FindString(title); d != "" {
			n, _ := strconv.Atoi(d)
			return n * 12
		}
	}
	return -1
}

// emoteURL picks the emote image rendition: the first image with one of the
// preferred size ids wins, otherwise the last image seen is kept.
func emoteURL(images []struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}) string {
	url := ""
	for _, img := range images {
		url = img.URL
		if img.ID == "source" || img.ID == "48x48" || img.ID == "24x24" {
			break
		}
	}
	return url
}

// Message flattens a raw chat message into a MessageRecord plus the emote
// rows it carries. A missing message_id is a hard error.
//
// Role flags deliberately track only the final badge on the message: a
// moderator whose last badge is a membership badge records as a non-moderator.
// Long-term consumers depend on the stored rows, so the behavior is frozen.
func Message(raw []byte, videoID string) (*MessageRecord, []EmoteRecord, error) {
	var p MessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, fmt.Errorf("decode message payload: %w", err)
	}
	if p.MessageID == "" {
		return nil, nil, fmt.Errorf("message payload missing message_id")
	}
	rec := &MessageRecord{
		MessageID:     p.MessageID,
		Message:       p.Message,
		Timestamp:     time.UnixMicro(p.Timestamp).UTC(),
		TimeInSeconds: p.TimeInSeconds,
		Type:          p.MessageType,
		VideoID:       videoID,
		MemberMonths:  -1,
	}
	if a := p.Author; a != nil {
		rec.UserID = a.ID
		rec.UserName = a.Name
		if a.Badges != nil {
			rec.MemberMonths = memberMonths(a.Badges)
			for _, b := range a.Badges {
				rec.IsVerified = b.Title == "Verified"
				rec.IsModerator = b.Title == "Moderator"
				rec.IsOwner = b.Title == "Owner"
			}
		}
	}
	if m := p.Money; m != nil {
		amount := m.Amount
		rec.Amount = &amount
		rec.Currency = m.Currency
		rec.Symbol = m.CurrencySymbol
	}
	rec.Color = p.HeaderBackgroundColour

	var emotes []EmoteRecord
	for _, e := range p.Emotes {
		emotes = append(emotes, EmoteRecord{
			ID:     e.ID,
			Name:   e.Name,
			URL:    emoteURL(e.Images),
			Custom: e.IsCustomEmoji,
		})
	}
	return rec, emotes, nil
}
