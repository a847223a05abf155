package rod

import (
	"strings"

	"golang.org/x/net/html"
)

var hiddenTags = []string{
	"script", "style", "noscript", "svg", "iframe", "head", "title", "template",
}

const maxVisibleText = 60_000

// ExtractVisibleText flattens rendered HTML into the text a user would
// see on screen, one whitespace-collapsed line. Markup that never
// renders visible text is skipped.
func ExtractVisibleText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	collectText(doc, &sb)

	text := strings.Join(strings.Fields(sb.String()), " ")
	if len(text) > maxVisibleText {
		text = text[:maxVisibleText]
	}
	return text
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.ElementNode:
		if isOneOf(n.Data, hiddenTags...) {
			return
		}
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func isOneOf(s string, candidates ...string) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}
