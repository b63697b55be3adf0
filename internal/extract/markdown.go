package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// MarkdownFromHTML renders readable-article HTML as plain markdown. It
// covers the structures readability emits (headings, paragraphs, lists,
// quotes, code, links); anything else degrades to its text content.
func MarkdownFromHTML(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	var b strings.Builder
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		renderBlock(&b, s)
	})
	out := blankRuns.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(out)
}

func renderBlock(b *strings.Builder, s *goquery.Selection) {
	node := s.Get(0)
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		if text := strings.TrimSpace(node.Data); text != "" {
			b.WriteString(text + "\n\n")
		}
		return
	}
	if node.Type != html.ElementNode {
		return
	}

	switch node.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(node.Data[1] - '0')
		b.WriteString(strings.Repeat("#", level) + " " + inlineText(s) + "\n\n")
	case "p":
		if text := inlineText(s); text != "" {
			b.WriteString(text + "\n\n")
		}
	case "ul":
		s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			b.WriteString("- " + inlineText(li) + "\n")
		})
		b.WriteString("\n")
	case "ol":
		s.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
			fmt.Fprintf(b, "%d. %s\n", i+1, inlineText(li))
		})
		b.WriteString("\n")
	case "blockquote":
		for _, line := range strings.Split(strings.TrimSpace(inlineText(s)), "\n") {
			b.WriteString("> " + strings.TrimSpace(line) + "\n")
		}
		b.WriteString("\n")
	case "pre":
		b.WriteString("```\n" + strings.TrimRight(s.Text(), "\n") + "\n```\n\n")
	case "table":
		// tables degrade to row-per-line text
		s.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, inlineText(cell))
			})
			b.WriteString(strings.Join(cells, " | ") + "\n")
		})
		b.WriteString("\n")
	case "hr":
		b.WriteString("---\n\n")
	case "img":
		if src, ok := s.Attr("src"); ok {
			alt, _ := s.Attr("alt")
			fmt.Fprintf(b, "![%s](%s)\n\n", alt, src)
		}
	case "script", "style", "noscript", "iframe":
		// dropped
	default:
		// container elements: recurse into children
		s.Contents().Each(func(_ int, child *goquery.Selection) {
			renderBlock(b, child)
		})
	}
}

// inlineText flattens a selection to one line, keeping links and inline
// code in markdown form.
func inlineText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		node := child.Get(0)
		if node == nil {
			return
		}
		switch {
		case node.Type == html.TextNode:
			b.WriteString(node.Data)
		case node.Type != html.ElementNode:
		case node.Data == "a":
			href, _ := child.Attr("href")
			text := strings.TrimSpace(inlineText(child))
			if text == "" {
				text = href
			}
			if href != "" {
				fmt.Fprintf(&b, "[%s](%s)", text, href)
			} else {
				b.WriteString(text)
			}
		case node.Data == "code":
			b.WriteString("`" + child.Text() + "`")
		case node.Data == "strong" || node.Data == "b":
			b.WriteString("**" + strings.TrimSpace(inlineText(child)) + "**")
		case node.Data == "em" || node.Data == "i":
			b.WriteString("*" + strings.TrimSpace(inlineText(child)) + "*")
		case node.Data == "br":
			b.WriteString("\n")
		default:
			b.WriteString(inlineText(child))
		}
	})
	return strings.TrimSpace(collapseSpaces(b.String()))
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
