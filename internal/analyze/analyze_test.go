package analyze

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/VK79/Radar12/internal/config"
	"github.com/VK79/Radar12/pkg/logx"
)

type mockChat struct {
	calls    int
	captured openai.ChatCompletionNewParams
	reply    string
	err      error
}

func (m *mockChat) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.calls++
	m.captured = body
	if m.err != nil {
		return nil, m.err
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.reply}},
		},
	}, nil
}

func newTestAnnotator(chat completionService) *Annotator {
	return &Annotator{
		chat:    chat,
		model:   defaultModel,
		timeout: time.Second,
		log:     logx.Nop(),
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(config.AIConfig{}, logx.Nop()); err == nil {
		t.Fatal("New: expected error for missing api key")
	}
}

func TestAnnotateReturnsVerdict(t *testing.T) {
	t.Parallel()
	m := &mockChat{reply: "  Topic: release notes. Tone: neutral.  "}
	a := newTestAnnotator(m)

	got := a.Annotate(context.Background(), "new version released", []string{"release"})
	if want := "Topic: release notes. Tone: neutral."; got != want {
		t.Fatalf("Annotate = %q, want %q", got, want)
	}
	if string(m.captured.Model) != defaultModel {
		t.Errorf("model = %q, want %q", m.captured.Model, defaultModel)
	}
	if len(m.captured.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(m.captured.Messages))
	}
	if m.captured.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	user := m.captured.Messages[1].OfUser
	if user == nil {
		t.Fatal("second message should be the user post")
	}
	content := user.Content.OfString.Value
	if !strings.Contains(content, "Matched keywords: release") {
		t.Errorf("user content = %q, want matched keywords header", content)
	}
	if !strings.Contains(content, "new version released") {
		t.Errorf("user content = %q, want post text", content)
	}
}

func TestAnnotateSwallowsModelFailure(t *testing.T) {
	t.Parallel()
	a := newTestAnnotator(&mockChat{err: errors.New("429")})

	if got := a.Annotate(context.Background(), "some post", nil); got != "" {
		t.Fatalf("Annotate = %q, want empty on failure", got)
	}
}

func TestAnnotateSkipsEmptyText(t *testing.T) {
	t.Parallel()
	m := &mockChat{reply: "unused"}
	a := newTestAnnotator(m)

	if got := a.Annotate(context.Background(), "   ", nil); got != "" {
		t.Fatalf("Annotate = %q, want empty", got)
	}
	if m.calls != 0 {
		t.Errorf("model calls = %d, want 0", m.calls)
	}
}

func TestAnnotateNilReceiver(t *testing.T) {
	t.Parallel()
	var a *Annotator
	if got := a.Annotate(context.Background(), "text", nil); got != "" {
		t.Fatalf("nil Annotate = %q, want empty", got)
	}
}

func TestAnnotateTruncatesLongInput(t *testing.T) {
	t.Parallel()
	m := &mockChat{reply: "ok"}
	a := newTestAnnotator(m)

	a.Annotate(context.Background(), strings.Repeat("д", inputLimit+500), nil)

	sent := m.captured.Messages[1].OfUser.Content.OfString.Value
	if rs := []rune(sent); len(rs) != inputLimit+1 {
		t.Fatalf("sent input = %d runes, want %d", len(rs), inputLimit+1)
	}
	if !strings.HasSuffix(sent, "…") {
		t.Error("truncated input should end with ellipsis")
	}
}

func TestAnnotateCapsVerdictLength(t *testing.T) {
	t.Parallel()
	m := &mockChat{reply: strings.Repeat("v", noteLimit+200)}
	a := newTestAnnotator(m)

	got := a.Annotate(context.Background(), "post", nil)
	if rs := []rune(got); len(rs) != noteLimit+1 {
		t.Fatalf("verdict = %d runes, want %d", len(rs), noteLimit+1)
	}
}
