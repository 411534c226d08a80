package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/VK79/Radar12/internal/config"
	"github.com/VK79/Radar12/internal/source"
)

func newSessionFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "radar.session")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write session file: %v", err)
	}
	return path
}

func TestNewRequiresSessionFile(t *testing.T) {
	t.Parallel()
	_, err := New(config.TelegramConfig{
		APIID:       1,
		APIHash:     "hash",
		SessionFile: filepath.Join(t.TempDir(), "missing.session"),
	})
	if err == nil {
		t.Fatal("New: expected error for missing session file")
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := New(config.TelegramConfig{APIHash: "hash"}); err == nil {
		t.Error("New: expected error for missing api_id")
	}
	if _, err := New(config.TelegramConfig{APIID: 1}); err == nil {
		t.Error("New: expected error for missing api_hash")
	}
}

func TestFetchFailsFastAfterTerminalFailure(t *testing.T) {
	t.Parallel()
	a, err := New(config.TelegramConfig{APIID: 1, APIHash: "hash", SessionFile: newSessionFile(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.setFailure(source.Fatal(ErrNotAuthorized))

	_, ferr := a.Fetch(context.Background(), "chan", 0, 20)
	if !source.IsFatal(ferr) {
		t.Fatalf("Fetch error = %v, want fatal", ferr)
	}
}

func TestFetchHonorsContextBeforeConnect(t *testing.T) {
	t.Parallel()
	a, err := New(config.TelegramConfig{APIID: 1, APIHash: "hash", SessionFile: newSessionFile(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ferr := a.Fetch(ctx, "chan", 0, 20)
	if !source.IsTransient(ferr) {
		t.Fatalf("Fetch error = %v, want transient", ferr)
	}
}

func TestMapMessages(t *testing.T) {
	t.Parallel()
	peer := channelPeer{id: 1, username: "chan", title: "The Channel"}
	msgs := []*tg.Message{
		{ID: 103, Date: 1700000300, Message: "third"},
		{ID: 102, Date: 1700000200, Message: "second"},
		{ID: 101, Date: 1700000100, Message: "first"},
		{ID: 99, Date: 1699999900, Message: "old"},
	}

	posts := mapMessages("telegram:chan", peer, 100, msgs)

	wantIDs := []int64{101, 102, 103}
	if len(posts) != len(wantIDs) {
		t.Fatalf("len(posts) = %d, want %d", len(posts), len(wantIDs))
	}
	for i, want := range wantIDs {
		if posts[i].ExternalID != want {
			t.Errorf("posts[%d].ExternalID = %d, want %d", i, posts[i].ExternalID, want)
		}
	}
	first := posts[0]
	if first.SourceKey != "telegram:chan" {
		t.Errorf("SourceKey = %q, want %q", first.SourceKey, "telegram:chan")
	}
	if first.SourceTitle != "The Channel" {
		t.Errorf("SourceTitle = %q, want %q", first.SourceTitle, "The Channel")
	}
	if want := "https://t.me/chan/101"; first.Permalink != want {
		t.Errorf("Permalink = %q, want %q", first.Permalink, want)
	}
	if got := first.PublishedAt.Unix(); got != 1700000100 {
		t.Errorf("PublishedAt.Unix() = %d, want %d", got, 1700000100)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		err       error
		wantFatal bool
	}{
		{"flood wait", tgerr.New(420, "FLOOD_WAIT_42"), false},
		{"auth key unregistered", tgerr.New(401, "AUTH_KEY_UNREGISTERED"), true},
		{"session revoked", tgerr.New(401, "SESSION_REVOKED"), true},
		{"channel private", tgerr.New(400, "CHANNEL_PRIVATE"), true},
		{"username not occupied", tgerr.New(400, "USERNAME_NOT_OCCUPIED"), true},
		{"transport drop", errors.New("engine was closed"), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := classify("history", tt.err)
			if got := source.IsFatal(err); got != tt.wantFatal {
				t.Errorf("IsFatal = %v, want %v (err: %v)", got, tt.wantFatal, err)
			}
			if got := source.IsTransient(err); got != !tt.wantFatal {
				t.Errorf("IsTransient = %v, want %v (err: %v)", got, !tt.wantFatal, err)
			}
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"chan", "chan"},
		{"@chan", "chan"},
		{" @chan ", "chan"},
		{"https://t.me/chan", "chan"},
		{"https://t.me/s/chan", "chan"},
		{"t.me/chan/", "chan"},
	}
	for _, tt := range tests {
		if got := normalizeIdentifier(tt.in); got != tt.want {
			t.Errorf("normalizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
