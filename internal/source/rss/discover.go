// ABOUTME: Feed autodiscovery from a page URL
// ABOUTME: Tries direct parse, HTML alternate links, then common feed paths

package rss

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/harper/feedsync/internal/fetch"
)

var (
	// ErrNoFeedFound reports that no usable feed exists at or near the URL.
	ErrNoFeedFound = errors.New("no RSS/Atom feed found at URL")
	// ErrInvalidURL reports an unusable input URL.
	ErrInvalidURL = errors.New("invalid URL")
)

// probePaths are tried, in order, when a page links no feed explicitly.
var probePaths = []string{
	"/feed.xml",
	"/feed",
	"/rss.xml",
	"/rss",
	"/atom.xml",
	"/index.xml",
	"/feeds/posts/default",
}

// Discovered is one feed found during autodiscovery.
type Discovered struct {
	URL   string
	Title string
}

// Discover resolves a site or page URL to a concrete feed URL. It tries the
// URL as a feed directly, then <link rel="alternate"> elements in the HTML,
// then a set of conventional feed paths.
func Discover(ctx context.Context, pageURL string) (*Discovered, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: missing scheme or host", ErrInvalidURL)
	}

	f := fetch.New()

	found, body, err := tryFeed(ctx, f, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if found != nil {
		return found, nil
	}

	for _, cand := range alternateLinks(body, parsed) {
		verified, _, err := tryFeed(ctx, f, cand.URL)
		if err != nil || verified == nil {
			continue
		}
		if verified.Title == "" {
			verified.Title = cand.Title
		}
		return verified, nil
	}

	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	for _, path := range probePaths {
		found, _, err := tryFeed(ctx, f, base.String()+path)
		if err == nil && found != nil {
			return found, nil
		}
	}

	return nil, ErrNoFeedFound
}

// tryFeed fetches the URL and attempts a feed parse. A parse failure is not
// an error; the raw body comes back so the caller can scan it as HTML.
func tryFeed(ctx context.Context, f *fetch.Fetcher, feedURL string) (*Discovered, []byte, error) {
	res, err := f.Fetch(ctx, feedURL, "", "")
	if err != nil {
		return nil, nil, err
	}
	feed, parseErr := gofeed.NewParser().ParseString(string(res.Body))
	if parseErr != nil {
		return nil, res.Body, nil
	}
	return &Discovered{URL: feedURL, Title: feed.Title}, res.Body, nil
}

// alternateLinks extracts feed candidates from <link rel="alternate">
// elements, resolving relative hrefs against the page URL.
func alternateLinks(body []byte, base *url.URL) []Discovered {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var found []Discovered
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "link" {
			var rel, typ, href, title string
			for _, a := range n.Attr {
				switch a.Key {
				case "rel":
					rel = a.Val
				case "type":
					typ = a.Val
				case "href":
					href = a.Val
				case "title":
					title = a.Val
				}
			}
			if rel == "alternate" && feedContentType(typ) && href != "" {
				if ref, err := url.Parse(href); err == nil {
					found = append(found, Discovered{
						URL:   base.ResolveReference(ref).String(),
						Title: title,
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func feedContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "rss") || strings.Contains(ct, "atom") || strings.Contains(ct, "xml")
}
