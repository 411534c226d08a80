package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VK79/Radar12/internal/source"
	"github.com/VK79/Radar12/internal/transport"
	"github.com/VK79/Radar12/pkg/logx"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []int64
	lastText string
	lastOpt  *transport.SendOptions
	failures map[int64]int // failures remaining per chat
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, chatID)
	f.lastText = text
	f.lastOpt = opt
	if n := f.failures[chatID]; n > 0 {
		f.failures[chatID] = n - 1
		return errors.New("send failed")
	}
	return nil
}

func testNotification() Notification {
	return Notification{
		Post: source.Post{
			SourceKey:   "vk:habr",
			SourceTitle: "Habr",
			ExternalID:  101,
			Text:        "a post about golang releases",
			Permalink:   "https://vk.com/wall-1_101",
			PublishedAt: time.Unix(1700000100, 0),
		},
		Keywords: []string{"golang"},
	}
}

func TestDeliverToAllRecipients(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{}
	d := New(fs, logx.Nop())

	outs := d.Deliver(context.Background(), testNotification(), Config{
		Recipients: []int64{10, 20, 30},
	})

	if Failed(outs) != 0 {
		t.Fatalf("Failed(outs) = %d, want 0", Failed(outs))
	}
	want := []int64{10, 20, 30}
	if len(fs.sent) != len(want) {
		t.Fatalf("sent = %v, want %v", fs.sent, want)
	}
	for i, id := range want {
		if fs.sent[i] != id {
			t.Errorf("sent[%d] = %d, want %d", i, fs.sent[i], id)
		}
	}
	if fs.lastOpt == nil || fs.lastOpt.ParseMode != "HTML" || !fs.lastOpt.DisablePreview {
		t.Errorf("send options = %+v, want HTML with preview disabled", fs.lastOpt)
	}
}

func TestDeliverIsolatesFailingRecipient(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{failures: map[int64]int{10: 100}}
	d := New(fs, logx.Nop())

	outs := d.Deliver(context.Background(), testNotification(), Config{
		Recipients: []int64{10, 20},
		Retries:    1,
		RetryDelay: time.Millisecond,
	})

	if len(outs) != 2 {
		t.Fatalf("len(outs) = %d, want 2", len(outs))
	}
	if outs[0].ChatID != 10 || outs[0].Err == nil || outs[0].Attempts != 2 {
		t.Errorf("outs[0] = %+v, want chat 10 failed after 2 attempts", outs[0])
	}
	if outs[1].ChatID != 20 || outs[1].Err != nil {
		t.Errorf("outs[1] = %+v, want chat 20 delivered", outs[1])
	}
	if Failed(outs) != 1 {
		t.Errorf("Failed(outs) = %d, want 1", Failed(outs))
	}
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{failures: map[int64]int{10: 2}}
	d := New(fs, logx.Nop())

	outs := d.Deliver(context.Background(), testNotification(), Config{
		Recipients: []int64{10},
		Retries:    2,
		RetryDelay: time.Millisecond,
	})

	if outs[0].Err != nil {
		t.Fatalf("outs[0].Err = %v, want nil", outs[0].Err)
	}
	if outs[0].Attempts != 3 {
		t.Errorf("outs[0].Attempts = %d, want 3", outs[0].Attempts)
	}
}

func TestDeliverStopsRetryingOnCancel(t *testing.T) {
	t.Parallel()
	fs := &fakeSender{failures: map[int64]int{10: 100}}
	d := New(fs, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outs := d.Deliver(ctx, testNotification(), Config{
		Recipients: []int64{10},
		Retries:    5,
		RetryDelay: time.Hour,
	})

	if outs[0].Err == nil {
		t.Fatal("outs[0].Err = nil, want error")
	}
	if outs[0].Attempts > 1 {
		t.Errorf("outs[0].Attempts = %d, want at most 1", outs[0].Attempts)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	n := testNotification()
	n.Post.Text = "<script>alert(1)</script> golang news"
	n.Note = "Relevant: new release announcement"

	got := Format(n)

	if !strings.Contains(got, "<b>Source:</b> Habr") {
		t.Errorf("Format missing source header:\n%s", got)
	}
	if !strings.Contains(got, "<b>Keywords:</b> golang") {
		t.Errorf("Format missing keywords:\n%s", got)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("Format did not escape post text:\n%s", got)
	}
	if !strings.Contains(got, "&lt;script&gt;") {
		t.Errorf("Format missing escaped text:\n%s", got)
	}
	if !strings.Contains(got, `<a href="https://vk.com/wall-1_101">`) {
		t.Errorf("Format missing permalink:\n%s", got)
	}
	if !strings.Contains(got, "<i>Relevant: new release announcement</i>") {
		t.Errorf("Format missing note:\n%s", got)
	}
}

func TestFormatWithoutOptionalParts(t *testing.T) {
	t.Parallel()
	n := Notification{Post: source.Post{SourceKey: "vk:habr", Text: "plain"}}

	got := Format(n)

	if !strings.Contains(got, "<b>Source:</b> vk:habr") {
		t.Errorf("Format should fall back to the source key:\n%s", got)
	}
	if strings.Contains(got, "Keywords") {
		t.Errorf("Format should omit empty keywords:\n%s", got)
	}
	if strings.Contains(got, "<i>") {
		t.Errorf("Format should omit empty note:\n%s", got)
	}
	if strings.Contains(got, "<a href") {
		t.Errorf("Format should omit empty permalink:\n%s", got)
	}
}

func TestExcerptCapsLongText(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("э", 400)
	got := excerpt(long, excerptLimit)
	rs := []rune(got)
	if len(rs) != excerptLimit+1 {
		t.Fatalf("excerpt length = %d runes, want %d", len(rs), excerptLimit+1)
	}
	if rs[len(rs)-1] != '…' {
		t.Errorf("excerpt should end with ellipsis, got %q", string(rs[len(rs)-5:]))
	}
}
