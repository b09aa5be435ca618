package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var vqdPatterns = []*regexp.Regexp{
	regexp.MustCompile(`vqd='([^']+)'`),
	regexp.MustCompile(`vqd="([^"]+)"`),
	regexp.MustCompile(`vqd=([a-zA-Z0-9_-]+)`),
}

// ddgResult represents a single DuckDuckGo search result from d.js.
type ddgResult struct {
	T string `json:"t"` // title
	A string `json:"a"` // abstract (HTML)
	U string `json:"u"` // URL
	C string `json:"c"` // content URL (alternative)
}

// DDGDiscoverer scrapes DuckDuckGo with a browser TLS fingerprint.
type DDGDiscoverer struct {
	Client *BrowserClient
	Site   string // appended as "site:<Site>" when set
	Region string // defaults to wt-wt
	Retry  RetryConfig
}

// Discover implements Discoverer.
func (d *DDGDiscoverer) Discover(ctx context.Context, query string, n int) ([]string, error) {
	if d.Client == nil {
		return nil, fmt.Errorf("ddg: no browser client")
	}
	hits, err := RetryDo(ctx, d.Retry, func() ([]SearchHit, error) {
		return d.Search(ctx, siteQuery(query, d.Site))
	})
	if err != nil {
		return nil, err
	}
	return hitURLs(hits, n), nil
}

// Search uses the HTML lite endpoint (html.duckduckgo.com/html) as primary,
// falling back to the d.js JSON API when HTML parsing yields nothing.
func (d *DDGDiscoverer) Search(ctx context.Context, query string) ([]SearchHit, error) {
	region := d.Region
	if region == "" {
		region = "wt-wt"
	}

	counters.DirectDDGRequests.Add(1)

	hits, err := d.searchHTML(ctx, query, region)
	if err == nil && len(hits) > 0 {
		slog.Debug("ddg direct results (html)", slog.Int("count", len(hits)))
		return hits, nil
	}
	if err != nil {
		slog.Debug("ddg html failed, trying d.js", slog.Any("error", err))
	}

	vqd, err := d.fetchVQD(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ddg vqd: %w", err)
	}
	hits, err = d.searchDJS(ctx, query, vqd, region)
	if err != nil {
		return nil, fmt.Errorf("ddg d.js: %w", err)
	}
	slog.Debug("ddg direct results (d.js)", slog.Int("count", len(hits)))
	return hits, nil
}

func (d *DDGDiscoverer) searchHTML(ctx context.Context, query, region string) ([]SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	form := url.Values{"q": {query}, "kl": {region}, "df": {""}}

	headers := ChromeHeaders()
	headers["referer"] = "https://html.duckduckgo.com/"
	headers["content-type"] = "application/x-www-form-urlencoded"

	data, _, status, err := d.Client.Do("POST", "https://html.duckduckgo.com/html/", headers, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	if status != 200 {
		return nil, &StatusError{StatusCode: status, Body: "ddg html"}
	}
	return parseDDGHTML(data)
}

// parseDDGHTML extracts search results from the DDG HTML lite response.
func parseDDGHTML(data []byte) ([]SearchHit, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("goquery parse: %w", err)
	}

	var hits []SearchHit
	doc.Find(".result, .web-result").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		link := s.Find("a.result__a, .result__title a, a.result-link").First()
		title := strings.TrimSpace(link.Text())
		href, exists := link.Attr("href")
		if !exists || title == "" {
			return
		}
		href = ddgUnwrapURL(href)
		if href == "" {
			return
		}
		hits = append(hits, SearchHit{
			Title:   title,
			Content: strings.TrimSpace(s.Find(".result__snippet, .result__body").First().Text()),
			URL:     href,
			Score:   1.0,
		})
	})
	return hits, nil
}

// ddgUnwrapURL extracts the actual URL from DDG redirect wrappers:
// //duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com&rut=...
func ddgUnwrapURL(href string) string {
	if strings.Contains(href, "duckduckgo.com/l/") || strings.Contains(href, "uddg=") {
		if u, err := url.Parse(href); err == nil {
			if uddg := u.Query().Get("uddg"); uddg != "" {
				return uddg
			}
		}
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	return ""
}

func (d *DDGDiscoverer) fetchVQD(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	headers := ChromeHeaders()
	headers["referer"] = "https://duckduckgo.com/"

	data, _, status, err := d.Client.Do("GET", "https://duckduckgo.com/?q="+url.QueryEscape(query), headers, nil)
	if err != nil {
		return "", err
	}
	if status != 200 {
		return "", &StatusError{StatusCode: status, Body: "ddg homepage"}
	}
	if vqd := extractVQD(string(data)); vqd != "" {
		return vqd, nil
	}
	return "", fmt.Errorf("vqd token not found in response (%d bytes)", len(data))
}

func (d *DDGDiscoverer) searchDJS(ctx context.Context, query, vqd, region string) ([]SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := url.Values{
		"q":   {query},
		"vqd": {vqd},
		"kl":  {region},
		"l":   {"us-en"},
		"o":   {"json"},
	}
	headers := ChromeHeaders()
	headers["referer"] = "https://duckduckgo.com/"
	headers["accept"] = "application/json, text/javascript, */*; q=0.01"

	data, _, status, err := d.Client.Do("GET", "https://links.duckduckgo.com/d.js?"+params.Encode(), headers, nil)
	if err != nil {
		return nil, err
	}
	if status != 200 && status != 202 {
		return nil, &StatusError{StatusCode: status, Body: "ddg d.js"}
	}
	return parseDDGResponse(data)
}

// parseDDGResponse extracts results from a d.js response, JSONP or a raw JSON array.
func parseDDGResponse(data []byte) ([]SearchHit, error) {
	body := strings.TrimSpace(string(data))
	if idx := strings.Index(body, "["); idx >= 0 {
		if end := strings.LastIndex(body, "]"); end > idx {
			body = body[idx : end+1]
		}
	}

	var raw []ddgResult
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("ddg json parse: %w (first 200 bytes: %s)", err, TruncateRunes(body, 200, ""))
	}

	var hits []SearchHit
	for _, r := range raw {
		u := r.U
		if u == "" {
			u = r.C
		}
		if u == "" || r.T == "" || strings.HasPrefix(u, "https://duckduckgo.com/") {
			continue
		}
		hits = append(hits, SearchHit{
			Title:   CleanHTML(r.T),
			Content: CleanHTML(r.A),
			URL:     u,
			Score:   1.0,
		})
	}
	return hits, nil
}

func extractVQD(body string) string {
	for _, pat := range vqdPatterns {
		if m := pat.FindStringSubmatch(body); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}
