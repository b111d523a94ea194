package notifiers

import (
	"fmt"
	"strings"
	"time"

	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/internal/identity"
)

const (
	unknownDate   = "unknown"
	noCategories  = "none"
	dateLayoutOut = "2006-01-02 15:04"
)

// Message is the payload delivered for one newly detected item.
type Message struct {
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Date       string    `json:"date"`
	Categories []string  `json:"categories"`
	DetectedAt time.Time `json:"detected_at"`
}

// NewMessage builds the message for item. The date is normalized, the URL is
// the canonical form when the item has an absolute link.
func NewMessage(sourceID, sourceName, key string, item domain.Item) Message {
	link := strings.TrimSpace(item.URL)
	if canonical, ok := identity.NormalizeURL(link); ok {
		link = canonical
	}
	cats := make([]string, 0, len(item.Categories))
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}
	return Message{
		SourceID:   sourceID,
		SourceName: sourceName,
		Key:        key,
		Title:      strings.TrimSpace(item.Title),
		URL:        link,
		Date:       FormatDate(item.PublishedAt),
		Categories: cats,
		DetectedAt: time.Now().UTC(),
	}
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02 Jan 2006 15:04",
	"2 Jan 2006 15:04",
	"2 January 2006 15:04",
	"January 2, 2006 15:04",
	"Jan 2, 2006 15:04",
	"2 Jan 2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"02/01/2006 15:04",
	"02/01/2006",
}

// FormatDate renders raw as "2006-01-02 15:04" when it matches a known
// layout, the raw string otherwise, and "unknown" when empty.
func FormatDate(raw string) string {
	raw = strings.Join(strings.Fields(raw), " ")
	if raw == "" {
		return unknownDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(dateLayoutOut)
		}
	}
	return raw
}

// CategoryList joins the categories or returns "none".
func (m Message) CategoryList() string {
	if len(m.Categories) == 0 {
		return noCategories
	}
	return strings.Join(m.Categories, ", ")
}

// Text renders the chat message body.
func (m Message) Text() string {
	var b strings.Builder
	title := m.Title
	if title == "" {
		title = m.URL
	}
	fmt.Fprintf(&b, "**%s**\n", title)
	if m.SourceName != "" {
		fmt.Fprintf(&b, "Source: %s\n", m.SourceName)
	}
	fmt.Fprintf(&b, "Date: %s\n", m.Date)
	fmt.Fprintf(&b, "Categories: %s\n", m.CategoryList())
	if m.URL != "" {
		b.WriteString(m.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}
