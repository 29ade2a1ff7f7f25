// Package markdown renders the constrained subset the AI drafts use into
// display-safe HTML. It is an ordered substitution pipeline, not a
// CommonMark implementation: fenced/backtick code, #/##/### headers,
// **bold**, *italic*, unordered and ordered list items, and paragraphs.
// Pathological input (unbalanced markers, nested lists) gets best-effort
// output; the only hard promise is that Render never panics and never
// passes raw HTML through.
package markdown

import (
	"regexp"
	"strings"
)

var (
	reCodeBlock  = regexp.MustCompile("(?s)```([^`]+)```")
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reH3         = regexp.MustCompile(`(?m)^### (.*)$`)
	reH2         = regexp.MustCompile(`(?m)^## (.*)$`)
	reH1         = regexp.MustCompile(`(?m)^# (.*)$`)
	reBold       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	reItalic     = regexp.MustCompile(`\*(.*?)\*`)
	reStarItem   = regexp.MustCompile(`(?m)^\s*\* (.*)$`)
	reDashItem   = regexp.MustCompile(`(?m)^\s*- (.*)$`)
	reNumItem    = regexp.MustCompile(`(?m)^\s*\d+\. (.*)$`)
	reListRun    = regexp.MustCompile(`(<li>.*</li>)`)
	reParagraph  = regexp.MustCompile(`(?m)^(?:[^<\n][^\n]*)$`)

	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
)

// Render converts a draft into HTML. Substitutions run in a fixed order;
// the input is HTML-escaped first so nothing in the draft can smuggle
// markup past the renderer.
func Render(text string) string {
	if text == "" {
		return ""
	}

	out := htmlEscaper.Replace(text)

	out = reCodeBlock.ReplaceAllString(out, "<pre><code>$1</code></pre>")
	out = reInlineCode.ReplaceAllString(out, "<code>$1</code>")

	out = reH3.ReplaceAllString(out, "<h3>$1</h3>")
	out = reH2.ReplaceAllString(out, "<h2>$1</h2>")
	out = reH1.ReplaceAllString(out, "<h1>$1</h1>")

	out = reBold.ReplaceAllString(out, "<strong>$1</strong>")
	out = reItalic.ReplaceAllString(out, "<em>$1</em>")

	out = reStarItem.ReplaceAllString(out, "<li>$1</li>")
	out = reDashItem.ReplaceAllString(out, "<li>$1</li>")
	out = reNumItem.ReplaceAllString(out, "<li>$1</li>")
	out = reListRun.ReplaceAllString(out, "<ul>$1</ul>")

	out = reParagraph.ReplaceAllString(out, "<p>$0</p>")

	// Adjacent list fragments collapse into one list; paragraph runs get
	// separated for readability.
	out = strings.ReplaceAll(out, "</p><p>", "</p>\n<p>")
	out = strings.ReplaceAll(out, "</ul><ul>", "")
	out = strings.ReplaceAll(out, "</ul>\n<ul>", "\n")

	return out
}
