// Package notify delivers rendered alerts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrMissingCredentials is returned when the bot token or chat id is empty.
var ErrMissingCredentials = errors.New("telegram bot token and chat id are required")

// APIError is a non-ok Bot API response.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// TelegramConfig configures the Bot API dispatcher.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	// ThreadID targets a forum topic; 0 posts to the main chat
	ThreadID int64
	MediaDir string
	BaseURL  string
	// MinGap is the minimum spacing between two requests to the chat
	MinGap     time.Duration
	Timeout    time.Duration
	MaxRetries int
}

type Telegram struct {
	cfg        TelegramConfig
	apiBase    string
	httpClient *http.Client
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	log        *slog.Logger

	mu          sync.Mutex
	nextAllowed time.Time
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	cfg.BotToken = strings.TrimSpace(cfg.BotToken)
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.MinGap < 0 {
		cfg.MinGap = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	return &Telegram{
		cfg:        cfg,
		apiBase:    strings.TrimRight(cfg.BaseURL, "/") + "/bot" + cfg.BotToken,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		sleep:      sleepCtx,
		log:        slog.Default().With("component", "telegram", "chat", cfg.ChatID),
	}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Send posts message as HTML. When media names an existing file it is sent as a
// video with message as caption; a failed video falls back to text. Each send
// targets the configured thread first and retries in the main chat.
func (t *Telegram) Send(ctx context.Context, message, media string) error {
	if path := t.resolveMedia(media); path != "" {
		err := t.toChat(ctx, func(thread bool) error {
			return t.sendVideo(ctx, path, message, thread)
		})
		if err == nil {
			return nil
		}
		t.log.Warn("video send failed, falling back to text", "media", path, "error", err)
	}
	return t.toChat(ctx, func(thread bool) error {
		return t.sendMessage(ctx, message, thread)
	})
}

func (t *Telegram) toChat(ctx context.Context, send func(thread bool) error) error {
	if t.cfg.ThreadID == 0 {
		return send(false)
	}
	err := send(true)
	if err == nil || ctx.Err() != nil {
		return err
	}
	t.log.Warn("thread send failed, retrying in main chat", "thread", t.cfg.ThreadID, "error", err)
	return send(false)
}

func (t *Telegram) resolveMedia(media string) string {
	media = strings.TrimSpace(media)
	if media == "" {
		return ""
	}
	path := media
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.cfg.MediaDir, path)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		t.log.Warn("media not found, sending text only", "media", path)
		return ""
	}
	return path
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	MessageThreadID       int64  `json:"message_thread_id,omitempty"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (t *Telegram) sendMessage(ctx context.Context, text string, thread bool) error {
	payload := sendMessageRequest{
		ChatID:                t.cfg.ChatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}
	if thread {
		payload.MessageThreadID = t.cfg.ThreadID
	}
	body, err := json.Marshal(&payload)
	if err != nil {
		return err
	}
	return t.do(ctx, "sendMessage", func() (io.Reader, string, error) {
		return bytes.NewReader(body), "application/json", nil
	})
}

func (t *Telegram) sendVideo(ctx context.Context, path, caption string, thread bool) error {
	return t.do(ctx, "sendVideo", func() (io.Reader, string, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, "", err
		}
		defer f.Close()

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		fields := map[string]string{
			"chat_id":    t.cfg.ChatID,
			"caption":    caption,
			"parse_mode": "HTML",
		}
		if thread {
			fields["message_thread_id"] = strconv.FormatInt(t.cfg.ThreadID, 10)
		}
		for k, v := range fields {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
		part, err := w.CreateFormFile("video", filepath.Base(path))
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	})
}

// do issues one API call. A 429 with retry_after is retried up to MaxRetries times.
func (t *Telegram) do(ctx context.Context, method string, build func() (io.Reader, string, error)) error {
	for attempt := 0; ; attempt++ {
		if err := t.waitTurn(ctx); err != nil {
			return err
		}
		body, contentType, err := build()
		if err != nil {
			return fmt.Errorf("telegram %s: build request: %w", method, err)
		}

		err = t.post(ctx, method, body, contentType)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 && attempt < t.cfg.MaxRetries {
			t.log.Warn("telegram rate limited", "method", method, "retry_after", apiErr.RetryAfter)
			if err := t.sleep(ctx, apiErr.RetryAfter); err != nil {
				return err
			}
			continue
		}
		return err
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *Telegram) post(ctx context.Context, method string, body io.Reader, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiBase+"/"+method, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode/100 == 2 && parsed.OK {
		return nil
	}

	apiErr := &APIError{Method: method, Code: resp.StatusCode, Description: parsed.Description}
	if apiErr.Description == "" {
		apiErr.Description = strings.TrimSpace(string(raw))
	}
	if parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
		apiErr.RetryAfter = time.Duration(parsed.Parameters.RetryAfter) * time.Second
	} else if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return apiErr
}

// waitTurn spaces requests at least MinGap apart.
func (t *Telegram) waitTurn(ctx context.Context) error {
	t.mu.Lock()
	now := t.now()
	slot := t.nextAllowed
	if slot.Before(now) {
		slot = now
	}
	t.nextAllowed = slot.Add(t.cfg.MinGap)
	t.mu.Unlock()

	if d := slot.Sub(now); d > 0 {
		return t.sleep(ctx, d)
	}
	return nil
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return 5 * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
