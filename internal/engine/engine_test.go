package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/VK79/Radar12/internal/config"
	"github.com/VK79/Radar12/internal/dispatch"
	"github.com/VK79/Radar12/internal/source"
	"github.com/VK79/Radar12/internal/storage"
	"github.com/VK79/Radar12/internal/transport"
	"github.com/VK79/Radar12/pkg/logx"
)

type staticConfigs struct{ cfg *config.Config }

func (s *staticConfigs) Get() *config.Config { return s.cfg }

type fakeAdapter struct {
	mu      sync.Mutex
	kind    config.SourceKind
	posts   map[string][]source.Post
	errs    map[string]error
	fetches map[string]int
}

func (f *fakeAdapter) Kind() config.SourceKind { return f.kind }

func (f *fakeAdapter) Fetch(ctx context.Context, identifier string, cursor int64, limit int) ([]source.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetches == nil {
		f.fetches = map[string]int{}
	}
	f.fetches[identifier]++
	if err := f.errs[identifier]; err != nil {
		return nil, err
	}
	var out []source.Post
	for _, p := range f.posts[identifier] {
		if p.ExternalID > cursor {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAdapter) fetchCount(identifier string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[identifier]
}

type sentMsg struct {
	chat int64
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
	fail map[int64]bool
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return errors.New("chat unreachable")
	}
	f.sent = append(f.sent, sentMsg{chat: chatID, text: text})
	return nil
}

func (f *fakeSender) messages() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMsg, len(f.sent))
	copy(out, f.sent)
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Sources:    []config.SourceConfig{{Kind: config.KindVK, Identifier: "habr"}},
		Keywords:   []string{"alert"},
		Recipients: []int64{10, 20},
		Dispatch:   config.DispatchConfig{RetryDelay: config.Duration{Duration: time.Millisecond}},
	}
}

func newTestService(t *testing.T, cfg *config.Config, ad *fakeAdapter, fs *fakeSender) (*Service, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := New(Deps{
		Configs:    &staticConfigs{cfg: cfg},
		Store:      st,
		Adapters:   []source.Adapter{ad},
		Dispatcher: dispatch.New(fs, logx.Nop()),
		Log:        logx.Nop(),
	})
	return svc, st
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCycleCommitsCursorAndDispatchesMatch(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{kind: config.KindVK, posts: map[string][]source.Post{
		"habr": {
			{SourceKey: "vk:habr", ExternalID: 101, Text: "nothing special", Permalink: "https://vk.com/wall-1_101"},
			{SourceKey: "vk:habr", ExternalID: 102, Text: "ALERT: maintenance window", Permalink: "https://vk.com/wall-1_102"},
			{SourceKey: "vk:habr", ExternalID: 103, Text: "routine update", Permalink: "https://vk.com/wall-1_103"},
		},
	}}
	fs := &fakeSender{}
	svc, st := newTestService(t, testConfig(), ad, fs)

	if err := st.Commit(context.Background(), "vk:habr", 100); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	svc.runCycle(context.Background(), make(chan struct{}))

	cur, found, err := st.Get(context.Background(), "vk:habr")
	if err != nil || !found {
		t.Fatalf("Get = (%d, %v, %v), want found cursor", cur, found, err)
	}
	if cur != 103 {
		t.Errorf("cursor = %d, want 103", cur)
	}

	msgs := fs.messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2 (one matched post, two recipients)", len(msgs))
	}
	chats := map[int64]bool{}
	for _, m := range msgs {
		chats[m.chat] = true
		if !strings.Contains(m.text, "wall-1_102") {
			t.Errorf("message should link the matched post, got:\n%s", m.text)
		}
	}
	if !chats[10] || !chats[20] {
		t.Errorf("recipients reached = %v, want 10 and 20", chats)
	}

	status := svc.Status()
	if status.LastError != "" {
		t.Errorf("LastError = %q, want empty", status.LastError)
	}
	if status.LastCycleAt.IsZero() {
		t.Error("LastCycleAt not set")
	}
}

func TestEmptyCyclesLeaveCursorAlone(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{kind: config.KindVK}
	fs := &fakeSender{}
	svc, st := newTestService(t, testConfig(), ad, fs)

	if err := st.Commit(context.Background(), "vk:habr", 100); err != nil {
		t.Fatalf("seed cursor: %v", err)
	}

	svc.runCycle(context.Background(), make(chan struct{}))
	svc.runCycle(context.Background(), make(chan struct{}))

	cur, _, err := st.Get(context.Background(), "vk:habr")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cur != 100 {
		t.Errorf("cursor = %d, want unchanged 100", cur)
	}
	if len(fs.messages()) != 0 {
		t.Errorf("sent %d messages, want 0", len(fs.messages()))
	}
	if got := svc.Status().LastError; got != "" {
		t.Errorf("LastError = %q, want empty", got)
	}
}

func TestFatalErrorDisablesSourceUntilConfigUpdate(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{kind: config.KindVK, errs: map[string]error{
		"habr": source.Fatal(errors.New("access revoked")),
	}}
	svc, _ := newTestService(t, testConfig(), ad, &fakeSender{})

	svc.runCycle(context.Background(), make(chan struct{}))
	if got := ad.fetchCount("habr"); got != 1 {
		t.Fatalf("fetches after first cycle = %d, want 1", got)
	}
	if got := svc.Status().LastError; !strings.Contains(got, "vk:habr") {
		t.Errorf("LastError = %q, want mention of vk:habr", got)
	}

	svc.runCycle(context.Background(), make(chan struct{}))
	if got := ad.fetchCount("habr"); got != 1 {
		t.Errorf("fetches after second cycle = %d, want still 1 (disabled)", got)
	}

	svc.OnConfigUpdate(nil)
	svc.runCycle(context.Background(), make(chan struct{}))
	if got := ad.fetchCount("habr"); got != 2 {
		t.Errorf("fetches after config update = %d, want 2 (re-enabled)", got)
	}
}

func TestTransientErrorRetriesNextCycle(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{kind: config.KindVK, errs: map[string]error{
		"habr": source.Transient(errors.New("rate limited")),
	}}
	svc, st := newTestService(t, testConfig(), ad, &fakeSender{})

	svc.runCycle(context.Background(), make(chan struct{}))
	svc.runCycle(context.Background(), make(chan struct{}))

	if got := ad.fetchCount("habr"); got != 2 {
		t.Errorf("fetches = %d, want 2 (transient keeps retrying)", got)
	}
	if _, found, _ := st.Get(context.Background(), "vk:habr"); found {
		t.Error("cursor committed despite fetch failure")
	}
	if got := svc.Status().LastError; got == "" {
		t.Error("LastError empty, want the transient failure recorded")
	}
}

func TestDispatchFailureStillAdvancesCursor(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{kind: config.KindVK, posts: map[string][]source.Post{
		"habr": {{SourceKey: "vk:habr", ExternalID: 101, Text: "alert issued"}},
	}}
	fs := &fakeSender{fail: map[int64]bool{10: true}}
	svc, st := newTestService(t, testConfig(), ad, fs)

	svc.runCycle(context.Background(), make(chan struct{}))

	cur, found, err := st.Get(context.Background(), "vk:habr")
	if err != nil || !found || cur != 101 {
		t.Fatalf("cursor = (%d, %v, %v), want committed 101", cur, found, err)
	}
	msgs := fs.messages()
	if len(msgs) != 1 || msgs[0].chat != 20 {
		t.Fatalf("messages = %+v, want exactly one delivery to chat 20", msgs)
	}
	if got := svc.Status().LastError; got != "" {
		t.Errorf("LastError = %q, want empty (dispatch failures are log-only)", got)
	}
}

func TestDisabledSourceIsNotFetched(t *testing.T) {
	t.Parallel()
	off := false
	cfg := testConfig()
	cfg.Sources[0].Enabled = &off
	ad := &fakeAdapter{kind: config.KindVK}
	svc, _ := newTestService(t, cfg, ad, &fakeSender{})

	svc.runCycle(context.Background(), make(chan struct{}))

	if got := ad.fetchCount("habr"); got != 0 {
		t.Errorf("fetches = %d, want 0", got)
	}
}

func TestStartRejectsUnusableConfig(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t, &config.Config{}, &fakeAdapter{kind: config.KindVK}, &fakeSender{})

	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("Start: expected error for empty source list")
	}
	status := svc.Status()
	if status.Running {
		t.Error("Running = true after rejected start")
	}
	if status.LastError == "" {
		t.Error("LastError empty, want the rejection recorded")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Engine.CheckInterval = config.Duration{Duration: time.Hour}
	ad := &fakeAdapter{kind: config.KindVK}
	svc, _ := newTestService(t, cfg, ad, &fakeSender{})

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	waitFor(t, 2*time.Second, "first cycle", func() bool {
		return !svc.Status().LastCycleAt.IsZero()
	})

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while the loop was sleeping")
	}
	if svc.Status().Running {
		t.Error("Running = true after Stop")
	}
	svc.Stop()

	// The engine can be started again after a stop.
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	svc.Stop()
}
