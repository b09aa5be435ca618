package engine

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	redditIDRe  = regexp.MustCompile(`^[A-Za-z0-9]{2,12}$`)
	youtubeIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
)

// blockedSegments are path segments that never lead to content.
var blockedSegments = map[string]bool{
	"ads":         true,
	"advertising": true,
	"settings":    true,
	"account":     true,
	"premium":     true,
	"login":       true,
}

// Resolve extracts a platform-tagged id from a Reddit or YouTube URL.
// Unrecognised shapes, foreign hosts and blocklisted paths return false.
func Resolve(raw string) (ResourceID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ResourceID{}, false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ResourceID{}, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ResourceID{}, false
	}

	segs := pathSegments(u.Path)
	for _, s := range segs {
		if blockedSegments[strings.ToLower(s)] {
			return ResourceID{}, false
		}
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case hostIs(host, "reddit.com"):
		return redditFromPath(segs)
	case host == "redd.it" || host == "www.redd.it":
		if len(segs) == 1 {
			return redditID(segs[0])
		}
	case hostIs(host, "youtube.com"), hostIs(host, "youtube-nocookie.com"):
		return youtubeFromURL(u, segs)
	case host == "youtu.be" || host == "www.youtu.be":
		if len(segs) >= 1 {
			return youtubeID(segs[0])
		}
	}
	return ResourceID{}, false
}

// ResolveAll resolves urls in order, keeping only ids for platform and dropping duplicates.
func ResolveAll(platform Platform, urls []string) []ResourceID {
	seen := make(map[ResourceID]bool, len(urls))
	var out []ResourceID
	for _, raw := range urls {
		id, ok := Resolve(raw)
		if !ok || id.Platform != platform || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func redditFromPath(segs []string) (ResourceID, bool) {
	switch {
	case len(segs) >= 2 && segs[0] == "comments":
		return redditID(segs[1])
	case len(segs) >= 4 && segs[2] == "comments" && (segs[0] == "r" || segs[0] == "user" || segs[0] == "u"):
		return redditID(segs[3])
	case len(segs) == 2 && segs[0] == "gallery":
		return redditID(segs[1])
	}
	return ResourceID{}, false
}

func youtubeFromURL(u *url.URL, segs []string) (ResourceID, bool) {
	if len(segs) == 1 && segs[0] == "watch" {
		return youtubeID(u.Query().Get("v"))
	}
	if len(segs) >= 2 {
		switch segs[0] {
		case "shorts", "embed", "live", "v":
			return youtubeID(segs[1])
		}
	}
	return ResourceID{}, false
}

func redditID(s string) (ResourceID, bool) {
	s = strings.TrimPrefix(s, "t3_")
	if !redditIDRe.MatchString(s) {
		return ResourceID{}, false
	}
	return ResourceID{Platform: PlatformReddit, Value: s}, true
}

func youtubeID(s string) (ResourceID, bool) {
	if !youtubeIDRe.MatchString(s) {
		return ResourceID{}, false
	}
	return ResourceID{Platform: PlatformYouTube, Value: s}, true
}

// hostIs reports whether host is domain or a subdomain of it.
func hostIs(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func pathSegments(p string) []string {
	var segs []string
	for s := range strings.SplitSeq(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}
