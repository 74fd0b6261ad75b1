package delivery

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/momentcast/internal/types"
)

// ArticleMarkdown converts the generated HTML article to Markdown. Invalid
// HTML falls back to the raw text.
func ArticleMarkdown(article string) string {
	if strings.TrimSpace(article) == "" {
		return ""
	}
	md, err := htmltomarkdown.ConvertString(article)
	if err != nil {
		return article
	}
	return strings.TrimSpace(md)
}

// Render formats a finalized moment as a chat message.
func Render(ev types.MomentEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", ev.Title)
	fmt.Fprintf(&b, "session %s · %s\n", ev.SessionID, ev.CreatedAt.Format("15:04:05"))

	if len(ev.Posts.Twitter) > 0 {
		b.WriteString("\nThread:\n")
		for i, post := range ev.Posts.Twitter {
			fmt.Fprintf(&b, "%d/ %s\n", i+1, post)
		}
	}
	if ev.Posts.Facebook != "" {
		fmt.Fprintf(&b, "\nFacebook:\n%s\n", ev.Posts.Facebook)
	}
	if ev.Posts.LinkedIn != "" {
		fmt.Fprintf(&b, "\nLinkedIn:\n%s\n", ev.Posts.LinkedIn)
	}
	if md := ArticleMarkdown(ev.Posts.Article); md != "" {
		fmt.Fprintf(&b, "\nArticle:\n%s\n", md)
	}
	if ev.Posts.IsEmpty() {
		fmt.Fprintf(&b, "\n%s\n", truncate(ev.Text, 600))
	}
	for _, c := range ev.Captures {
		fmt.Fprintf(&b, "\n[-%ds] %s", c.OffsetSeconds, c.StillURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
