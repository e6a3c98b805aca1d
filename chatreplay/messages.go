package chatreplay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// renderer keys mapped to the flat message_type the normalizer stores.
var rendererTypes = map[string]string{
	"liveChatTextMessageRenderer":    "text_message",
	"liveChatMembershipItemRenderer": "membership_item",
	"liveChatPaidMessageRenderer":    "paid_message",
	"liveChatPaidStickerRenderer":    "paid_sticker",
}

// extractPayloads flattens every chat item in a poll response into raw JSON
// payloads. Replay actions wrap the item and carry the video offset.
func extractPayloads(page map[string]any) []json.RawMessage {
	var out []json.RawMessage
	for _, action := range gatherActions(page) {
		offset := -1.0
		inner := action
		if replay := digMap(action, "replayChatItemAction"); replay != nil {
			if s, ok := replay["videoOffsetTimeMsec"].(string); ok {
				if ms, err := strconv.ParseFloat(s, 64); err == nil {
					offset = ms / 1000
				}
			}
			if actions, ok := replay["actions"].([]any); ok && len(actions) > 0 {
				if m, ok := actions[0].(map[string]any); ok {
					inner = m
				}
			}
		}
		item := digMap(inner, "addChatItemAction", "item")
		if item == nil {
			continue
		}
		for key, msgType := range rendererTypes {
			renderer, ok := item[key].(map[string]any)
			if !ok {
				continue
			}
			payload := buildPayload(renderer, msgType, offset)
			if payload == nil {
				continue
			}
			raw, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			out = append(out, raw)
		}
	}
	return out
}

func gatherActions(page map[string]any) []map[string]any {
	var out []map[string]any
	collect := func(arr []any) {
		for _, item := range arr {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	if arr, ok := page["actions"].([]any); ok {
		collect(arr)
	}
	if lc := digMap(page, "continuationContents", "liveChatContinuation"); lc != nil {
		if arr, ok := lc["actions"].([]any); ok {
			collect(arr)
		}
	}
	return out
}

func buildPayload(renderer map[string]any, msgType string, offset float64) map[string]any {
	id, _ := renderer["id"].(string)
	if id == "" {
		return nil
	}
	payload := map[string]any{
		"message_id":   id,
		"message_type": msgType,
	}
	if text := textField(renderer, "message"); text != "" {
		payload["message"] = text
	} else if msgType == "membership_item" {
		payload["message"] = textField(renderer, "headerSubtext")
	}
	if usec, ok := renderer["timestampUsec"].(string); ok {
		if n, err := strconv.ParseInt(usec, 10, 64); err == nil {
			payload["timestamp"] = n
		}
	}
	if offset >= 0 {
		payload["time_in_seconds"] = offset
	}

	author := map[string]any{}
	if chanID, ok := renderer["authorExternalChannelId"].(string); ok {
		author["id"] = chanID
	}
	if name := textField(renderer, "authorName"); name != "" {
		author["name"] = name
	}
	if badges := extractBadges(renderer); badges != nil {
		author["badges"] = badges
	}
	if len(author) > 0 {
		payload["author"] = author
	}

	if amountText := textField(renderer, "purchaseAmountText"); amountText != "" {
		if money := parseMoney(amountText); money != nil {
			payload["money"] = money
		}
	}
	if bg, ok := renderer["headerBackgroundColor"].(float64); ok {
		payload["header_background_colour"] = fmt.Sprintf("#%08x", uint32(bg))
	}
	if emotes := extractEmotes(renderer); emotes != nil {
		payload["emotes"] = emotes
	}
	return payload
}

func extractBadges(renderer map[string]any) []map[string]any {
	arr, ok := renderer["authorBadges"].([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, elem := range arr {
		m, ok := elem.(map[string]any)
		if !ok {
			continue
		}
		badge := digMap(m, "liveChatAuthorBadgeRenderer")
		if badge == nil {
			continue
		}
		if tip, ok := badge["tooltip"].(string); ok && tip != "" {
			out = append(out, map[string]any{"title": tip})
		}
	}
	return out
}

// extractEmotes pulls emoji runs out of the message and shapes them as
// emote entries with size-keyed image renditions.
func extractEmotes(renderer map[string]any) []map[string]any {
	msg, ok := renderer["message"].(map[string]any)
	if !ok {
		return nil
	}
	runs, ok := msg["runs"].([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	seen := map[string]bool{}
	for _, run := range runs {
		part, ok := run.(map[string]any)
		if !ok {
			continue
		}
		emoji := digMap(part, "emoji")
		if emoji == nil {
			continue
		}
		id, _ := emoji["emojiId"].(string)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		custom, _ := emoji["isCustomEmoji"].(bool)
		name := id
		if shortcuts, ok := emoji["shortcuts"].([]any); ok && len(shortcuts) > 0 {
			if s, ok := shortcuts[0].(string); ok && s != "" {
				name = s
			}
		}
		entry := map[string]any{
			"id":              id,
			"name":            name,
			"is_custom_emoji": custom,
		}
		if thumbs, ok := digMap(emoji, "image")["thumbnails"].([]any); ok {
			var images []map[string]any
			for _, t := range thumbs {
				tm, ok := t.(map[string]any)
				if !ok {
					continue
				}
				u, _ := tm["url"].(string)
				imgID := "source"
				if w, ok := tm["width"].(float64); ok {
					if h, ok := tm["height"].(float64); ok {
						imgID = fmt.Sprintf("%dx%d", int(w), int(h))
					}
				}
				images = append(images, map[string]any{"id": imgID, "url": u})
			}
			if images != nil {
				entry["images"] = images
			}
		}
		out = append(out, entry)
	}
	return out
}

// currency symbols mapped to ISO codes for the common superchat currencies.
var currencyCodes = map[string]string{
	"$":   "USD",
	"CA$": "CAD",
	"A$":  "AUD",
	"NT$": "TWD",
	"HK$": "HKD",
	"MX$": "MXN",
	"R$":  "BRL",
	"£":   "GBP",
	"€":   "EUR",
	"¥":   "JPY",
	"₩":   "KRW",
	"₹":   "INR",
	"PHP": "PHP",
	"SEK": "SEK",
}

// parseMoney splits a purchase amount like "CA$5.00" or "¥1,000" into a
// money payload. Unrecognized symbols keep the raw prefix as the currency.
func parseMoney(s string) map[string]any {
	s = strings.TrimSpace(s)
	split := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			split = i
			break
		}
	}
	if split < 0 {
		return nil
	}
	symbol := strings.TrimSpace(s[:split])
	numeric := strings.ReplaceAll(strings.TrimSpace(s[split:]), ",", "")
	amount, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return nil
	}
	currency := currencyCodes[symbol]
	if currency == "" {
		currency = symbol
	}
	return map[string]any{
		"amount":          amount,
		"currency":        currency,
		"currency_symbol": symbol,
	}
}

func textField(m map[string]any, key string) string {
	nested, ok := m[key].(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := nested["simpleText"].(string); ok {
		return s
	}
	runs, ok := nested["runs"].([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, run := range runs {
		part, ok := run.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := part["text"].(string); ok {
			b.WriteString(text)
			continue
		}
		if emoji := digMap(part, "emoji"); emoji != nil {
			if shortcuts, ok := emoji["shortcuts"].([]any); ok && len(shortcuts) > 0 {
				if s, ok := shortcuts[0].(string); ok {
					b.WriteString(s)
				}
			}
		}
	}
	return b.String()
}
