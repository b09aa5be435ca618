package engine

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// markupVocab names the elements used for one platform's markup.
type markupVocab struct {
	root      string
	item      string
	container string
	body      string
	subs      string
	sub       string
}

var vocabularies = map[Platform]markupVocab{
	PlatformReddit:  {root: "reddit_results", item: "post", container: "subreddit", body: "content", subs: "comments", sub: "comment"},
	PlatformYouTube: {root: "youtube_results", item: "video", container: "channel", body: "description", subs: "transcript", sub: "excerpt"},
}

func vocabFor(p Platform) markupVocab {
	if v, ok := vocabularies[p]; ok {
		return v
	}
	return markupVocab{root: "results", item: "item", container: "container", body: "body", subs: "items", sub: "item"}
}

// Format renders one record in the given mode. Unknown modes fall back to full.
func Format(rec DetailRecord, mode OutputFormat) FormattedResult {
	switch mode {
	case FormatReducedObject:
		slim := Slim(rec)
		return FormattedResult{Format: mode, Slim: &slim}
	case FormatReducedMarkup:
		return FormattedResult{Format: mode, Markup: MarkupFragment(rec)}
	default:
		full := cloneRecord(rec)
		return FormattedResult{Format: FormatFull, Record: &full}
	}
}

// FormatAll renders every record in order.
func FormatAll(recs []DetailRecord, mode OutputFormat) []FormattedResult {
	out := make([]FormattedResult, 0, len(recs))
	for _, r := range recs {
		out = append(out, Format(r, mode))
	}
	return out
}

// Slim drops engagement numbers and timestamps, keeping only text fields.
func Slim(rec DetailRecord) SlimRecord {
	subs := make([]string, 0, len(rec.SubItems))
	for _, s := range rec.SubItems {
		if body := CollapseWhitespace(s.Body); body != "" {
			subs = append(subs, body)
		}
	}
	return SlimRecord{
		Title:     rec.Title,
		Container: rec.Container,
		URL:       rec.URL,
		Body:      rec.Body,
		SubItems:  subs,
	}
}

// MarkupFragment renders one record as a <post> or <video> element. Empty fields are omitted.
func MarkupFragment(rec DetailRecord) string {
	var sb strings.Builder
	writeItem(&sb, vocabFor(rec.Platform), rec, "")
	return sb.String()
}

// FormatMarkupBatch wraps all records in a single document with an XML declaration.
func FormatMarkupBatch(platform Platform, recs []DetailRecord) string {
	v := vocabFor(platform)
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString("<" + v.root + ">\n")
	for _, r := range recs {
		writeItem(&sb, v, r, "  ")
	}
	sb.WriteString("</" + v.root + ">\n")
	return sb.String()
}

func writeItem(sb *strings.Builder, v markupVocab, rec DetailRecord, indent string) {
	inner := indent + "  "
	sb.WriteString(indent + "<" + v.item + ">\n")
	writeElem(sb, inner, "title", rec.Title)
	writeElem(sb, inner, v.container, rec.Container)
	writeElem(sb, inner, "url", rec.URL)
	writeElem(sb, inner, v.body, rec.Body)

	var subs []string
	for _, s := range rec.SubItems {
		if body := CollapseWhitespace(s.Body); body != "" {
			subs = append(subs, body)
		}
	}
	if len(subs) > 0 {
		sb.WriteString(inner + "<" + v.subs + ">\n")
		for _, s := range subs {
			writeElem(sb, inner+"  ", v.sub, s)
		}
		sb.WriteString(inner + "</" + v.subs + ">\n")
	}
	sb.WriteString(indent + "</" + v.item + ">\n")
}

func writeElem(sb *strings.Builder, indent, name, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	sb.WriteString(indent + "<" + name + ">")
	sb.WriteString(EscapeMarkup(text))
	sb.WriteString("</" + name + ">\n")
}

var markupEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeMarkup escapes the five structural characters and drops characters XML 1.0 forbids.
func EscapeMarkup(s string) string {
	return markupEscaper.Replace(stripInvalidXML(s))
}

func stripInvalidXML(s string) string {
	clean := true
	for _, r := range s {
		if !validXMLRune(r) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if validXMLRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validXMLRune(r rune) bool {
	switch {
	case r == utf8.RuneError:
		return false
	case r == 0x09 || r == 0x0A || r == 0x0D:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}

func cloneRecord(rec DetailRecord) DetailRecord {
	rec.SubItems = slices.Clone(rec.SubItems)
	if rec.SubItems == nil {
		rec.SubItems = []SubItem{}
	}
	return rec
}
