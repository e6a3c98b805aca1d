// Package chatreplay retrieves chat messages for a video through the public
// web chat endpoints, covering both finished replays and still-running live
// chats. Messages are emitted as raw JSON payloads in a flat shape the
// normalizer understands, one message per Next call.
package chatreplay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// ErrNoChatReplay is returned when a video has no chat attached, either
// because chat was disabled or the replay was never published.
var ErrNoChatReplay = errors.New("chatreplay: no chat replay available")

// ErrVideoUnplayable is returned when the watch page refuses playback
// (private, deleted, members-only without credentials, region locked).
var ErrVideoUnplayable = errors.New("chatreplay: video unplayable")

const defaultUserAgent = "Mozilla/5.0 (compatible; archive-sync/1.0)"

// Stream yields one message payload per call. Next returns io.EOF when the
// replay is exhausted or, for live chats, when the inactivity cutoff fires.
type Stream interface {
	Next(ctx context.Context) (json.RawMessage, error)
	Close() error
}

// Client fetches chat for videos. The zero value works; fields tune behavior.
type Client struct {
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// BaseURL overrides the site root, mainly for tests.
	BaseURL string
	// InactivityTimeout ends a live chat stream after this long without a
	// new message. Zero waits indefinitely.
	InactivityTimeout time.Duration
	// CookiesPath points at a Netscape-format cookie file, needed for
	// members-only replays.
	CookiesPath string
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "https://www.youtube.com"
}

// Open bootstraps chat for videoID off the watch page and returns a Stream
// over its messages. Unplayable videos and videos without chat map to the
// package sentinel errors.
func (c *Client) Open(ctx context.Context, videoID string) (Stream, error) {
	boot, err := c.bootstrap(ctx, videoID)
	if err != nil {
		return nil, err
	}
	return &pollStream{
		client:       c,
		apiKey:       boot.apiKey,
		version:      boot.version,
		continuation: boot.continuation,
		isReplay:     boot.isReplay,
		lastMessage:  time.Now(),
	}, nil
}

type bootstrapData struct {
	apiKey       string
	version      string
	continuation string
	isReplay     bool
}

func (c *Client) bootstrap(ctx context.Context, videoID string) (*bootstrapData, error) {
	watchURL := fmt.Sprintf("%s/watch?v=%s", c.baseURL(), url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	if err := c.attachCookies(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chatreplay: watch page status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	text := string(body)

	if status := playabilityStatus(text); status != "" && status != "OK" {
		if status == "LIVE_STREAM_OFFLINE" {
			return nil, ErrNoChatReplay
		}
		return nil, fmt.Errorf("%w: playability %s", ErrVideoUnplayable, status)
	}

	apiKey := extractString(text, `"INNERTUBE_API_KEY":"`)
	version := extractString(text, `"INNERTUBE_CLIENT_VERSION":"`)
	if apiKey == "" || version == "" {
		return nil, errors.New("chatreplay: could not locate api key or client version")
	}

	var initJSON string
	for _, marker := range []string{
		`ytInitialData = `,
		`ytInitialData"] = `,
		`ytInitialData":`,
	} {
		if initJSON = extractJSONObject(text, marker); initJSON != "" {
			break
		}
	}
	if initJSON == "" {
		return nil, errors.New("chatreplay: could not locate initial data")
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(initJSON), &data); err != nil {
		return nil, fmt.Errorf("chatreplay: parse initial data: %w", err)
	}

	continuation := findChatContinuation(data)
	if continuation == "" {
		return nil, ErrNoChatReplay
	}

	isReplay := !strings.Contains(text, `"isLiveNow":true`)
	return &bootstrapData{
		apiKey:       apiKey,
		version:      version,
		continuation: continuation,
		isReplay:     isReplay,
	}, nil
}

func playabilityStatus(page string) string {
	idx := strings.Index(page, `"playabilityStatus":`)
	if idx == -1 {
		return ""
	}
	return extractString(page[idx:], `"status":"`)
}

// attachCookies loads a Netscape-format cookie file and sets matching
// cookies on the request. Malformed lines are skipped.
func (c *Client) attachCookies(req *http.Request) error {
	if c.CookiesPath == "" {
		return nil
	}
	f, err := os.Open(c.CookiesPath)
	if err != nil {
		return fmt.Errorf("chatreplay: open cookies: %w", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		req.AddCookie(&http.Cookie{Name: fields[5], Value: fields[6]})
	}
	return scanner.Err()
}

func extractString(text, marker string) string {
	idx := strings.Index(text, marker)
	if idx == -1 {
		return ""
	}
	start := idx + len(marker)
	end := strings.Index(text[start:], `"`)
	if end == -1 {
		return ""
	}
	return text[start : start+end]
}

func extractJSONObject(text, marker string) string {
	idx := strings.Index(text, marker)
	if idx == -1 {
		return ""
	}
	start := idx + len(marker)
	for start < len(text) && (text[start] == ' ' || text[start] == '\n' || text[start] == '\r' || text[start] == '\t') {
		start++
	}
	if start >= len(text) || text[start] != '{' {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func digMap(m map[string]any, keys ...string) map[string]any {
	current := m
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// findChatContinuation walks the initial data looking for a continuation
// token inside a live chat subtree.
func findChatContinuation(data map[string]any) string {
	type item struct {
		value  any
		inChat bool
	}
	queue := []item{{value: data}}
	for len(queue) > 0 {
		var cur item
		cur, queue = queue[0], queue[1:]
		switch v := cur.value.(type) {
		case map[string]any:
			inChat := cur.inChat || hasChatKey(v)
			if inChat {
				if cont := continuationFromNode(v); cont != "" {
					return cont
				}
			}
			for key, child := range v {
				queue = append(queue, item{value: child, inChat: inChat || isChatKey(key)})
			}
		case []any:
			for _, child := range v {
				queue = append(queue, item{value: child, inChat: cur.inChat})
			}
		}
	}
	return ""
}

func isChatKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "livechat")
}

func hasChatKey(m map[string]any) bool {
	for key := range m {
		if isChatKey(key) {
			return true
		}
	}
	return false
}

func continuationFromNode(node map[string]any) string {
	if arr, ok := node["continuations"].([]any); ok {
		for _, elem := range arr {
			m, ok := elem.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range []string{"invalidationContinuationData", "timedContinuationData", "reloadContinuationData", "liveChatReplayContinuationData"} {
				if next := digMap(m, key); next != nil {
					if s, ok := next["continuation"].(string); ok && s != "" {
						return s
					}
				}
			}
		}
	}
	if endpoint := digMap(node, "continuationEndpoint", "continuationCommand"); endpoint != nil {
		if s, ok := endpoint["token"].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
