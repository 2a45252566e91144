// Package fetch walks a bounded set of same-site pages breadth-first. It is
// deliberately not a general crawler: one seed, one host, a hard page cap
// and a fixed delay between requests.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xxxsen/webrag/internal/model"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

type Config struct {
	MaxPages     int
	RequestDelay time.Duration
	Timeout      time.Duration
	UserAgent    string
}

type Fetcher struct {
	client    *http.Client
	maxPages  int
	delay     time.Duration
	userAgent string
}

func New(cfg Config) *Fetcher {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		maxPages:  maxPages,
		delay:     cfg.RequestDelay,
		userAgent: userAgent,
	}
}

// Site crawls breadth-first from seed, staying on the seed's host, and
// returns the fetched pages as raw documents. A page that fails to fetch is
// reported and skipped; the crawl keeps going.
func (f *Fetcher) Site(ctx context.Context, seed string) ([]model.Document, []model.IngestFailure, error) {
	seedURL, err := url.Parse(seed)
	if err != nil {
		return nil, nil, fmt.Errorf("parse seed url: %w", err)
	}
	if seedURL.Scheme == "" || seedURL.Host == "" {
		return nil, nil, fmt.Errorf("seed url must be absolute: %s", seed)
	}

	var docs []model.Document
	var failures []model.IngestFailure
	visited := map[string]struct{}{}
	queue := []string{canonical(seedURL)}

	for len(queue) > 0 && len(docs) < f.maxPages {
		if err := ctx.Err(); err != nil {
			return docs, failures, err
		}
		target := queue[0]
		queue = queue[1:]
		if _, ok := visited[target]; ok {
			continue
		}
		visited[target] = struct{}{}

		body, err := f.get(ctx, target)
		if err != nil {
			logutil.GetLogger(ctx).Warn("page fetch failed", zap.String("url", target), zap.Error(err))
			failures = append(failures, model.IngestFailure{SourceURL: target, Reason: err.Error()})
			continue
		}
		title, links := parsePage(body, seedURL)
		docs = append(docs, model.Document{
			SourceURL: target,
			Title:     title,
			RawText:   body,
			FetchedAt: time.Now().UnixMilli(),
		})
		for _, link := range links {
			if _, ok := visited[link]; !ok {
				queue = append(queue, link)
			}
		}
		if f.delay > 0 {
			select {
			case <-ctx.Done():
				return docs, failures, ctx.Err()
			case <-time.After(f.delay):
			}
		}
	}
	logutil.GetLogger(ctx).Info("site fetch finished",
		zap.String("seed", seed),
		zap.Int("pages", len(docs)),
		zap.Int("failures", len(failures)),
	)
	return docs, failures, nil
}

func (f *Fetcher) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// parsePage extracts the page title and same-host links from an HTML body.
// Malformed markup degrades to whatever the parser salvages.
func parsePage(body string, base *url.URL) (string, []string) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", nil
	}
	var title string
	var links []string
	seen := map[string]struct{}{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title", "h1":
				if title == "" {
					title = strings.TrimSpace(textOf(n))
				}
			case "a":
				for _, attr := range n.Attr {
					if attr.Key != "href" {
						continue
					}
					if link, ok := resolveLink(attr.Val, base); ok {
						if _, dup := seen[link]; !dup {
							seen[link] = struct{}{}
							links = append(links, link)
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, links
}

func resolveLink(href string, base *url.URL) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(resolved.Host, base.Host) {
		return "", false
	}
	return canonical(resolved), true
}

func canonical(u *url.URL) string {
	clean := *u
	clean.Fragment = ""
	return clean.String()
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
