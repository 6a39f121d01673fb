package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type apiCall struct {
	Method   string
	ThreadID string
	Text     string
	Caption  string
	FileName string
}

// fakeBotAPI answers Bot API calls through respond and records each request.
type fakeBotAPI struct {
	t       *testing.T
	mu      sync.Mutex
	calls   []apiCall
	respond func(call apiCall, n int) (int, string)
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	call := apiCall{Method: filepath.Base(r.URL.Path)}
	if filepath.Base(filepath.Dir(r.URL.Path)) != "botTOKEN" {
		f.t.Errorf("unexpected path %s", r.URL.Path)
	}

	switch call.Method {
	case "sendMessage":
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode: %v", err)
		}
		if req["parse_mode"] != "HTML" {
			f.t.Errorf("expected parse_mode HTML, got %v", req["parse_mode"])
		}
		call.Text, _ = req["text"].(string)
		if v, ok := req["message_thread_id"].(float64); ok {
			call.ThreadID = jsonNumber(v)
		}
	case "sendVideo":
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			f.t.Errorf("parse multipart: %v", err)
		}
		call.Caption = r.FormValue("caption")
		call.ThreadID = r.FormValue("message_thread_id")
		if _, hdr, err := r.FormFile("video"); err == nil {
			call.FileName = hdr.Filename
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	n := len(f.calls)
	f.mu.Unlock()

	code, body := http.StatusOK, `{"ok":true,"result":{}}`
	if f.respond != nil {
		code, body = f.respond(call, n)
	}
	w.WriteHeader(code)
	w.Write([]byte(body))
}

func (f *fakeBotAPI) recorded() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

func jsonNumber(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func newTestTelegram(t *testing.T, api *fakeBotAPI, cfg TelegramConfig) (*Telegram, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg.BotToken = "TOKEN"
	cfg.ChatID = "-100200"
	cfg.BaseURL = srv.URL
	tg, err := NewTelegram(cfg)
	if err != nil {
		t.Fatalf("NewTelegram: %v", err)
	}

	var sleeps []time.Duration
	now := time.Unix(1_700_000_000, 0)
	tg.now = func() time.Time { return now }
	tg.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		now = now.Add(d)
		return nil
	}
	return tg, &sleeps
}

const failBody = `{"ok":false,"error_code":400,"description":"Bad Request: message thread not found"}`

func TestNewTelegram_RequiresCredentials(t *testing.T) {
	if _, err := NewTelegram(TelegramConfig{ChatID: "1"}); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
	if _, err := NewTelegram(TelegramConfig{BotToken: "x", ChatID: "  "}); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestTelegram_SendText(t *testing.T) {
	api := &fakeBotAPI{t: t}
	tg, _ := newTestTelegram(t, api, TelegramConfig{})

	if err := tg.Send(context.Background(), "<b>buy</b>", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := api.recorded()
	if len(calls) != 1 || calls[0].Method != "sendMessage" || calls[0].Text != "<b>buy</b>" || calls[0].ThreadID != "" {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

func TestTelegram_ThreadFallback(t *testing.T) {
	api := &fakeBotAPI{t: t, respond: func(call apiCall, n int) (int, string) {
		if call.ThreadID != "" {
			return http.StatusBadRequest, failBody
		}
		return http.StatusOK, `{"ok":true}`
	}}
	tg, _ := newTestTelegram(t, api, TelegramConfig{ThreadID: 42})

	if err := tg.Send(context.Background(), "hi", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := api.recorded()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %+v", calls)
	}
	if calls[0].ThreadID != "42" || calls[1].ThreadID != "" {
		t.Errorf("expected thread then main chat, got %+v", calls)
	}
}

func TestTelegram_VideoWithCaption(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "whale.mp4"), []byte("fake video"), 0o644); err != nil {
		t.Fatal(err)
	}
	api := &fakeBotAPI{t: t}
	tg, _ := newTestTelegram(t, api, TelegramConfig{MediaDir: dir, ThreadID: 7})

	if err := tg.Send(context.Background(), "whale!", "whale.mp4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := api.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %+v", calls)
	}
	c := calls[0]
	if c.Method != "sendVideo" || c.Caption != "whale!" || c.FileName != "whale.mp4" || c.ThreadID != "7" {
		t.Errorf("unexpected call: %+v", c)
	}
}

func TestTelegram_VideoFailureFallsBackToText(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "big.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	api := &fakeBotAPI{t: t, respond: func(call apiCall, n int) (int, string) {
		if call.Method == "sendVideo" {
			return http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: wrong file"}`
		}
		return http.StatusOK, `{"ok":true}`
	}}
	tg, _ := newTestTelegram(t, api, TelegramConfig{MediaDir: dir})

	if err := tg.Send(context.Background(), "big buy", "big.mp4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := api.recorded()
	if len(calls) != 2 || calls[0].Method != "sendVideo" || calls[1].Method != "sendMessage" {
		t.Errorf("expected video then text, got %+v", calls)
	}
}

func TestTelegram_MissingMediaSendsText(t *testing.T) {
	api := &fakeBotAPI{t: t}
	tg, _ := newTestTelegram(t, api, TelegramConfig{MediaDir: t.TempDir()})

	if err := tg.Send(context.Background(), "buy", "nope.mp4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := api.recorded()
	if len(calls) != 1 || calls[0].Method != "sendMessage" {
		t.Errorf("expected text only, got %+v", calls)
	}
}

func TestTelegram_RetryAfter(t *testing.T) {
	api := &fakeBotAPI{t: t, respond: func(call apiCall, n int) (int, string) {
		if n == 1 {
			return http.StatusTooManyRequests, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`
		}
		return http.StatusOK, `{"ok":true}`
	}}
	tg, sleeps := newTestTelegram(t, api, TelegramConfig{})

	if err := tg.Send(context.Background(), "buy", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(api.recorded()) != 2 {
		t.Errorf("expected a retry, got %d calls", len(api.recorded()))
	}
	if len(*sleeps) == 0 || (*sleeps)[0] != 3*time.Second {
		t.Errorf("expected 3s retry wait, got %v", *sleeps)
	}
}

func TestTelegram_ErrorSurfaced(t *testing.T) {
	api := &fakeBotAPI{t: t, respond: func(call apiCall, n int) (int, string) {
		return http.StatusForbidden, `{"ok":false,"error_code":403,"description":"Forbidden: bot was kicked"}`
	}}
	tg, _ := newTestTelegram(t, api, TelegramConfig{})

	err := tg.Send(context.Background(), "buy", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != http.StatusForbidden || apiErr.Description != "Forbidden: bot was kicked" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if len(api.recorded()) != 1 {
		t.Errorf("expected no retry on 403, got %d calls", len(api.recorded()))
	}
}

func TestTelegram_MinGap(t *testing.T) {
	api := &fakeBotAPI{t: t}
	tg, sleeps := newTestTelegram(t, api, TelegramConfig{MinGap: 1100 * time.Millisecond})

	for i := 0; i < 3; i++ {
		if err := tg.Send(context.Background(), "buy", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	want := []time.Duration{1100 * time.Millisecond, 1100 * time.Millisecond}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected sleeps %v, got %v", want, *sleeps)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], (*sleeps)[i])
		}
	}
}

func TestLog_Send(t *testing.T) {
	l := NewLog(nil)
	if l.Name() != "log" {
		t.Errorf("expected name log, got %s", l.Name())
	}
	if err := l.Send(context.Background(), "msg", ""); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
