// ABOUTME: OPML import and export for the feed subscription registry
// ABOUTME: Flat outline lists mapping one outline per registered feed

package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// Feed is one subscription in an OPML document.
type Feed struct {
	Title string
	URL   string
}

// Document is a flat OPML subscription list.
type Document struct {
	Title string
	Feeds []Feed
}

type opmlXML struct {
	XMLName xml.Name   `xml:"opml"`
	Version string     `xml:"version,attr"`
	Head    headXML    `xml:"head"`
	Body    []lineXML  `xml:"body>outline"`
}

type headXML struct {
	Title       string `xml:"title"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type lineXML struct {
	Type     string    `xml:"type,attr,omitempty"`
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	Children []lineXML `xml:"outline"`
}

// NewDocument creates an empty subscription list.
func NewDocument(title string) *Document {
	return &Document{Title: title}
}

// Add appends a subscription, replacing any existing one with the same URL.
func (d *Document) Add(title, url string) {
	for i, f := range d.Feeds {
		if f.URL == url {
			d.Feeds[i].Title = title
			return
		}
	}
	d.Feeds = append(d.Feeds, Feed{Title: title, URL: url})
}

// Parse reads an OPML document, flattening any folder nesting.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read OPML: %w", err)
	}

	var raw opmlXML
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse OPML: %w", err)
	}

	doc := &Document{Title: raw.Head.Title}
	var walk func([]lineXML)
	walk = func(lines []lineXML) {
		for _, l := range lines {
			if l.XMLURL != "" {
				title := l.Title
				if title == "" {
					title = l.Text
				}
				doc.Add(title, l.XMLURL)
			}
			walk(l.Children)
		}
	}
	walk(raw.Body)
	return doc, nil
}

// Write renders the document as OPML 2.0.
func (d *Document) Write(w io.Writer) error {
	raw := opmlXML{
		Version: "2.0",
		Head: headXML{
			Title:       d.Title,
			DateCreated: time.Now().UTC().Format(time.RFC1123Z),
		},
	}
	for _, f := range d.Feeds {
		text := f.Title
		if text == "" {
			text = f.URL
		}
		raw.Body = append(raw.Body, lineXML{
			Type:   "rss",
			Text:   text,
			Title:  f.Title,
			XMLURL: f.URL,
		})
	}

	out, err := xml.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode OPML: %w", err)
	}

	var b strings.Builder
	b.WriteString(xml.Header)
	b.Write(out)
	b.WriteString("\n")
	_, err = io.WriteString(w, b.String())
	return err
}
