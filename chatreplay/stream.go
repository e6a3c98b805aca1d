package chatreplay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// pollStream walks get_live_chat continuations, buffering one page of
// messages at a time.
type pollStream struct {
	client       *Client
	apiKey       string
	version      string
	continuation string
	isReplay     bool

	buffer      []json.RawMessage
	pollDelayMs int
	lastMessage time.Time
	done        bool
}

func (s *pollStream) Next(ctx context.Context) (json.RawMessage, error) {
	for {
		if len(s.buffer) > 0 {
			msg := s.buffer[0]
			s.buffer = s.buffer[1:]
			s.lastMessage = time.Now()
			return msg, nil
		}
		if s.done || s.continuation == "" {
			return nil, io.EOF
		}
		if !s.isReplay {
			if t := s.client.InactivityTimeout; t > 0 && time.Since(s.lastMessage) > t {
				return nil, io.EOF
			}
			if s.pollDelayMs > 0 {
				if !sleepContext(ctx, time.Duration(s.pollDelayMs)*time.Millisecond) {
					return nil, ctx.Err()
				}
			}
		}
		if err := s.poll(ctx); err != nil {
			return nil, err
		}
	}
}

func (s *pollStream) Close() error {
	s.done = true
	s.buffer = nil
	return nil
}

func (s *pollStream) endpoint() string {
	name := "get_live_chat"
	if s.isReplay {
		name = "get_live_chat_replay"
	}
	return fmt.Sprintf("%s/youtubei/v1/live_chat/%s?key=%s",
		s.client.baseURL(), name, url.QueryEscape(s.apiKey))
}

func (s *pollStream) poll(ctx context.Context) error {
	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    "WEB",
				"clientVersion": s.version,
				"hl":            "en",
			},
		},
		"continuation": s.continuation,
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", defaultUserAgent)
	if err := s.client.attachCookies(req); err != nil {
		return err
	}

	resp, err := s.client.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("chatreplay: poll status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	var page map[string]any
	if err := json.Unmarshal(body, &page); err != nil {
		return fmt.Errorf("chatreplay: decode poll response: %w", err)
	}

	cont, delay := extractContinuation(page)
	s.buffer = extractPayloads(page)
	s.pollDelayMs = delay
	s.continuation = cont
	if cont == "" {
		// Replays end by omitting the continuation; live chats that drop
		// it have simply ended.
		s.done = len(s.buffer) == 0
	}
	return nil
}

func extractContinuation(page map[string]any) (string, int) {
	cont := ""
	delay := 0
	var walk func(any)
	walk = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			if cont == "" {
				if s, ok := val["continuation"].(string); ok && s != "" {
					cont = s
				}
				if cmd := digMap(val, "continuationEndpoint", "continuationCommand"); cmd != nil {
					if s, ok := cmd["token"].(string); ok && s != "" {
						cont = s
					}
				}
			}
			if delay == 0 {
				if tm, ok := val["timeoutMs"].(float64); ok && tm > 0 {
					delay = int(tm)
				}
			}
			for _, child := range val {
				walk(child)
			}
		case []any:
			for _, child := range val {
				walk(child)
			}
		}
	}
	walk(page)
	return cont, delay
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
