package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StartpageDiscoverer scrapes Startpage with a browser TLS fingerprint.
type StartpageDiscoverer struct {
	Client   *BrowserClient
	Site     string // appended as "site:<Site>" when set
	Language string // defaults to english
	Retry    RetryConfig
}

// Discover implements Discoverer.
func (s *StartpageDiscoverer) Discover(ctx context.Context, query string, n int) ([]string, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("startpage: no browser client")
	}
	hits, err := RetryDo(ctx, s.Retry, func() ([]SearchHit, error) {
		return s.Search(ctx, siteQuery(query, s.Site))
	})
	if err != nil {
		return nil, err
	}
	return hitURLs(hits, n), nil
}

// Search posts the query to the Startpage web form and parses the result page.
func (s *StartpageDiscoverer) Search(ctx context.Context, query string) ([]SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang := s.Language
	if lang == "" || lang == "all" {
		lang = "english"
	}
	counters.DirectStartpageRequests.Add(1)

	form := url.Values{"query": {query}, "cat": {"web"}, "language": {lang}}
	headers := ChromeHeaders()
	headers["referer"] = "https://www.startpage.com/"
	headers["content-type"] = "application/x-www-form-urlencoded"
	headers["accept"] = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

	data, _, status, err := s.Client.Do("POST", "https://www.startpage.com/sp/search", headers, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("startpage request: %w", err)
	}
	if status != 200 {
		return nil, &StatusError{StatusCode: status, Body: "startpage"}
	}
	hits, err := parseStartpageHTML(data)
	if err != nil {
		return nil, err
	}
	slog.Debug("startpage direct results", slog.Int("count", len(hits)))
	return hits, nil
}

func parseStartpageHTML(data []byte) ([]SearchHit, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("goquery parse: %w", err)
	}

	var hits []SearchHit
	doc.Find(".w-gl__result, .result").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a.w-gl__result-title, h3 a, a.result-link").First()
		title := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		if !ok || title == "" || href == "" {
			return
		}
		// Startpage's own redirect and ad links.
		if strings.Contains(href, "startpage.com/do/") {
			return
		}
		hits = append(hits, SearchHit{
			Title:   title,
			Content: strings.TrimSpace(sel.Find("p.w-gl__description, .w-gl__description, p.result-description").First().Text()),
			URL:     href,
			Score:   1.0,
		})
	})
	return hits, nil
}
