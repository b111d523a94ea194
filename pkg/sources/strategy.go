package sources

import "strings"

// Strategy is one selector set tried against a listing page. For html sources
// the selectors are CSS; for xpath sources they are XPath expressions. Title,
// Link, Date and Category are evaluated relative to each Item match.
type Strategy struct {
	Name     string `json:"name" yaml:"name"`
	Item     string `json:"item" yaml:"item"`
	Title    string `json:"title" yaml:"title"`
	Link     string `json:"link" yaml:"link"`
	LinkAttr string `json:"link_attr" yaml:"link_attr"`
	Date     string `json:"date" yaml:"date"`
	DateAttr string `json:"date_attr" yaml:"date_attr"`
	Category string `json:"category" yaml:"category"`
}

const defaultLinkAttr = "href"

// DefaultHTMLStrategies is the fallback chain used when an html source declares none.
func DefaultHTMLStrategies() []Strategy {
	return []Strategy{
		{
			Name:     "article",
			Item:     "article",
			Title:    "h1, h2, h3, .title",
			Link:     "a[href]",
			Date:     "time",
			DateAttr: "datetime",
			Category: ".category, .tag, [rel=tag]",
		},
		{
			Name:     "post",
			Item:     ".post, .news-item, .entry",
			Title:    "h2, h3, .title, .headline",
			Link:     "a[href]",
			Date:     "time, .date, .published",
			DateAttr: "datetime",
			Category: ".category, .tag",
		},
		{
			Name:  "list",
			Item:  "ul.news li, li.news-item",
			Title: "a",
			Link:  "a[href]",
			Date:  ".date, time",
		},
	}
}

func (s Strategy) linkAttr() string {
	if attr := strings.TrimSpace(s.LinkAttr); attr != "" {
		return attr
	}
	return defaultLinkAttr
}

func strategiesFor(src Source) []Strategy {
	if len(src.Strategies) > 0 {
		return src.Strategies
	}
	if src.Type == TypeHTML {
		return DefaultHTMLStrategies()
	}
	return nil
}
