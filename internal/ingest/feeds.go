package ingest

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// rss represents an RSS feed structure.
type rss struct {
	XMLName xml.Name `xml:"rss"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// atom represents an Atom feed structure.
type atom struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	Link      []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	ID        string     `xml:"id"`
}

// FeedItem is one entry discovered in a source's feed.
type FeedItem struct {
	Title       string
	Link        string
	Description string
	Published   time.Time
}

// parseFeed decodes a feed document, trying RSS first and then Atom.
func parseFeed(body []byte) ([]FeedItem, error) {
	var r rss
	if err := xml.Unmarshal(body, &r); err == nil && len(r.Channel.Items) > 0 {
		items := make([]FeedItem, 0, len(r.Channel.Items))
		for _, item := range r.Channel.Items {
			items = append(items, FeedItem{
				Title:       strings.TrimSpace(item.Title),
				Link:        strings.TrimSpace(item.Link),
				Description: strings.TrimSpace(item.Description),
				Published:   parseRSSDate(item.PubDate),
			})
		}
		return items, nil
	}

	var a atom
	if err := xml.Unmarshal(body, &a); err == nil && len(a.Entries) > 0 {
		items := make([]FeedItem, 0, len(a.Entries))
		for _, entry := range a.Entries {
			var link string
			for _, l := range entry.Link {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			description := entry.Summary
			if description == "" {
				description = entry.Content
			}
			published := entry.Published
			if published == "" {
				published = entry.Updated
			}
			items = append(items, FeedItem{
				Title:       strings.TrimSpace(entry.Title),
				Link:        strings.TrimSpace(link),
				Description: strings.TrimSpace(description),
				Published:   parseAtomDate(published),
			})
		}
		return items, nil
	}

	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

// parseRSSDate parses the date formats found in RSS feeds in the wild.
func parseRSSDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC1123,
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, strings.TrimSpace(dateStr)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseAtomDate parses Atom dates (RFC3339, with RSS formats as fallback).
func parseAtomDate(dateStr string) time.Time {
	if dateStr == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(dateStr)); err == nil {
		return t.UTC()
	}
	return parseRSSDate(dateStr)
}
