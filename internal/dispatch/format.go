package dispatch

import (
	"fmt"
	"html"
	"strings"

	"github.com/VK79/Radar12/internal/source"
)

// excerptLimit caps quoted post text; whole posts stay one click away
// behind the permalink.
const excerptLimit = 300

// Notification is one matched post ready for delivery.
type Notification struct {
	Post     source.Post
	Keywords []string
	Note     string // optional AI annotation
}

// Format renders the Telegram HTML body for a notification. Post text
// is untrusted and gets escaped; the permalink is built by our adapters.
func Format(n Notification) string {
	var b strings.Builder
	b.WriteString("🔔 <b>New mention</b>\n")

	title := n.Post.SourceTitle
	if title == "" {
		title = n.Post.SourceKey
	}
	fmt.Fprintf(&b, "<b>Source:</b> %s\n", html.EscapeString(title))
	if len(n.Keywords) > 0 {
		fmt.Fprintf(&b, "<b>Keywords:</b> %s\n", html.EscapeString(strings.Join(n.Keywords, ", ")))
	}
	if !n.Post.PublishedAt.IsZero() {
		fmt.Fprintf(&b, "<b>Posted:</b> %s\n", n.Post.PublishedAt.UTC().Format("2006-01-02 15:04 MST"))
	}

	if ex := excerpt(n.Post.Text, excerptLimit); ex != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(ex))
		b.WriteString("\n")
	}
	if n.Note != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>\n", html.EscapeString(n.Note))
	}
	if n.Post.Permalink != "" {
		fmt.Fprintf(&b, "\n<a href=%q>Open post</a>", n.Post.Permalink)
	}
	return b.String()
}

func excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return strings.TrimSpace(string(rs[:limit])) + "…"
}
