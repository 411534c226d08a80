// Package analyze annotates matched posts with a short model verdict
// through an OpenAI-compatible chat completions endpoint.
package analyze

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/VK79/Radar12/internal/config"
	"github.com/VK79/Radar12/pkg/logx"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "deepseek/deepseek-r1-0528:free"
	defaultTimeout = 60 * time.Second

	// inputLimit caps post text sent out for analysis; noteLimit caps
	// what comes back into a notification.
	inputLimit = 2000
	noteLimit  = 600

	maxTokens   = 500
	temperature = 0.7
)

const systemPrompt = `You are a social media analyst. For the post you are given:
1. Name the main topic in one sentence.
2. State the tone (positive, negative or neutral).
3. Mention a call to action if the post contains one.
Answer in at most three short sentences, in the language of the post.`

// completionService is the slice of the SDK the annotator needs;
// tests substitute it.
type completionService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Annotator asks a model for a verdict on matched posts. A nil
// Annotator is valid and annotates nothing, so callers never branch on
// whether the feature is configured.
type Annotator struct {
	chat    completionService
	model   string
	timeout time.Duration
	log     logx.Logger
}

func New(cfg config.AIConfig, log logx.Logger) (*Annotator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("analyze: api key is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(base),
		// OpenRouter attribution headers; harmless on other backends.
		option.WithHeader("HTTP-Referer", "https://github.com/VK79/Radar12"),
		option.WithHeader("X-Title", "Radar"),
	)
	return &Annotator{
		chat:    client.Chat.Completions,
		model:   model,
		timeout: cfg.Timeout.Or(defaultTimeout),
		log:     log,
	}, nil
}

// Annotate returns a verdict for the post text, or "" when annotation
// is off or the model call fails. Notifications go out either way.
func (a *Annotator) Annotate(ctx context.Context, text string, keywords []string) string {
	if a == nil {
		return ""
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if rs := []rune(text); len(rs) > inputLimit {
		text = string(rs[:inputLimit]) + "…"
	}
	user := text
	if len(keywords) > 0 {
		user = "Matched keywords: " + strings.Join(keywords, ", ") + "\n\n" + text
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		a.log.Warn("post annotation failed", logx.Err(err))
		return ""
	}
	if len(resp.Choices) == 0 {
		a.log.Warn("post annotation returned no choices", logx.String("model", a.model))
		return ""
	}
	note := strings.TrimSpace(resp.Choices[0].Message.Content)
	if rs := []rune(note); len(rs) > noteLimit {
		note = strings.TrimSpace(string(rs[:noteLimit])) + "…"
	}
	return note
}
