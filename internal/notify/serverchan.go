package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ServerChanSender delivers notifications via ServerChan, which forwards
// them to WeChat.
type ServerChanSender struct {
	key    string
	client *http.Client
}

// NewServerChanSender creates a ServerChanSender for the given SendKey.
func NewServerChanSender(key string) *ServerChanSender {
	return &ServerChanSender{
		key:    key,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the notification to the ServerChan push endpoint. The message
// body is rendered as the "desp" Markdown field.
func (s *ServerChanSender) Send(ctx context.Context, title, message string) error {
	endpoint := fmt.Sprintf("https://sctapi.ftqq.com/%s.send", s.key)

	form := url.Values{
		"title": {title},
		"desp":  {message},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("serverchan: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("serverchan: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("serverchan: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (s *ServerChanSender) Name() string {
	return "serverchan"
}
