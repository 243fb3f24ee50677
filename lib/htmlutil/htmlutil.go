package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText normalizes scraped display text: non-printable runes are
// dropped and runs of whitespace collapse to a single space.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

// FirstMatch evaluates an ordered list of selectors against the root and
// returns the first selection that matches anything. Moodle has shipped
// several generations of markup for the same logical entity, keeping the
// chain data-driven means supporting a new generation is appending one
// selector.
func FirstMatch(root *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, selector := range selectors {
		sel := root.Find(selector)
		if sel.Length() > 0 {
			return sel
		}
	}
	return nil
}

// FirstText returns the cleaned text of the first selector in the chain
// that yields a non-empty string.
func FirstText(root *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		sel := root.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		text := CleanText(sel.First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

// FirstAttr returns the named attribute of the first selector in the
// chain that carries a non-empty value.
func FirstAttr(root *goquery.Selection, attr string, selectors ...string) string {
	for _, selector := range selectors {
		sel := root.Find(selector)
		if sel.Length() == 0 {
			continue
		}
		val, ok := sel.First().Attr(attr)
		if ok && val != "" {
			return val
		}
	}
	return ""
}
