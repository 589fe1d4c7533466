package scrape

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const indentUnit = " "

// Prettify renders a parsed document with one node per line, children
// indented by one space per level. Whitespace-only text is dropped. The
// contents of script and style are kept verbatim, and pre and textarea
// subtrees are rendered as-is on their own line.
func Prettify(doc *html.Node) string {
	var b strings.Builder
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		pretty(&b, c, 0)
	}
	return b.String()
}

func pretty(b *strings.Builder, n *html.Node, depth int) {
	pad := strings.Repeat(indentUnit, depth)
	switch n.Type {
	case html.DoctypeNode:
		b.WriteString("<!DOCTYPE " + n.Data + ">\n")
	case html.CommentNode:
		b.WriteString(pad + "<!--" + n.Data + "-->\n")
	case html.TextNode:
		t := strings.TrimSpace(n.Data)
		if t == "" {
			return
		}
		b.WriteString(pad + html.EscapeString(t) + "\n")
	case html.ElementNode:
		if isPreformatted(n.DataAtom) {
			b.WriteString(pad)
			if err := html.Render(b, n); err != nil {
				b.WriteString(startTag(n) + "</" + n.Data + ">")
			}
			b.WriteByte('\n')
			return
		}
		b.WriteString(pad + startTag(n) + "\n")
		if isVoid(n.DataAtom) {
			return
		}
		if isRaw(n.DataAtom) {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			if !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
		} else {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				pretty(b, c, depth+1)
			}
		}
		b.WriteString(pad + "</" + n.Data + ">\n")
	}
}

func startTag(n *html.Node) string {
	var b strings.Builder
	b.WriteString("<" + n.Data)
	for _, a := range n.Attr {
		b.WriteByte(' ')
		if a.Namespace != "" {
			b.WriteString(a.Namespace + ":")
		}
		b.WriteString(a.Key + `="` + html.EscapeString(a.Val) + `"`)
	}
	b.WriteByte('>')
	return b.String()
}

func isVoid(a atom.Atom) bool {
	switch a {
	case atom.Area, atom.Base, atom.Br, atom.Col, atom.Embed, atom.Hr, atom.Img,
		atom.Input, atom.Link, atom.Meta, atom.Source, atom.Track, atom.Wbr:
		return true
	}
	return false
}

func isRaw(a atom.Atom) bool {
	return a == atom.Script || a == atom.Style
}

// isPreformatted reports elements whose whitespace is content.
func isPreformatted(a atom.Atom) bool {
	return a == atom.Pre || a == atom.Textarea
}
