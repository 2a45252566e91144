// Package normalize turns raw fetched pages into clean, chunk-ready text.
// Normalization is deterministic so chunk IDs derived from the output stay
// stable across re-ingestion runs.
package normalize

import (
	"strings"

	"golang.org/x/net/html"
)

var skipTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"nav":      {},
	"header":   {},
	"footer":   {},
	"aside":    {},
	"iframe":   {},
	"svg":      {},
	"form":     {},
}

var blockTags = map[string]struct{}{
	"p":          {},
	"div":        {},
	"section":    {},
	"article":    {},
	"main":       {},
	"li":         {},
	"tr":         {},
	"td":         {},
	"th":         {},
	"h1":         {},
	"h2":         {},
	"h3":         {},
	"h4":         {},
	"h5":         {},
	"h6":         {},
	"br":         {},
	"blockquote": {},
	"pre":        {},
}

// HTML extracts readable text from an HTML document. Boilerplate elements
// (navigation, scripts, chrome) are dropped, block boundaries become
// paragraph breaks and whitespace is collapsed. Malformed markup yields
// best-effort partial text rather than an error: the tokenizer consumes
// whatever it can parse.
func HTML(raw string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(raw))
	var sb strings.Builder
	skipDepth := 0
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return collapse(sb.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if _, ok := skipTags[tag]; ok && tt == html.StartTagToken {
				skipDepth++
				continue
			}
			if _, ok := blockTags[tag]; ok {
				sb.WriteString("\n\n")
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if _, ok := skipTags[string(name)]; ok {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if _, ok := blockTags[string(name)]; ok {
				sb.WriteString("\n\n")
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			sb.Write(tokenizer.Text())
		}
	}
}

// Text normalizes plain text: collapses runs of spaces and blank lines while
// keeping paragraph boundaries.
func Text(raw string) string {
	return collapse(raw)
}

func collapse(raw string) string {
	paragraphs := strings.Split(raw, "\n\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		fields := strings.Fields(p)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n\n")
}
