package ais

import (
	"bytes"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/net/html"
)

func parseHTML(b []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(b))
}

// findFirst walks the tree depth-first and returns the first node matching fn.
func findFirst(n *html.Node, fn func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if fn(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := findFirst(c, fn); m != nil {
			return m
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// textContent concatenates descendant text with whitespace collapsed.
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func metaContent(doc *html.Node, name string) string {
	n := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "meta") && attr(n, "name") == name
	})
	if n == nil {
		return ""
	}
	return attr(n, "content")
}

// inputValue returns the value of the first <input name=...> and whether it exists.
func inputValue(doc *html.Node, name string) (string, bool) {
	n := findFirst(doc, func(n *html.Node) bool {
		return isElement(n, "input") && attr(n, "name") == name
	})
	if n == nil {
		return "", false
	}
	return attr(n, "value"), true
}

func firstByClass(doc *html.Node, class string) *html.Node {
	return findFirst(doc, func(n *html.Node) bool { return hasClass(n, class) })
}

// e.g. "Consular Appointment: 17 March, 2026, 08:15 Tel Aviv local time"
var appointmentDateRe = regexp.MustCompile(`\b(\d{1,2} [A-Z][a-z]+, \d{4})\b`)

// parseAppointmentDate extracts the calendar date from the consular appointment blurb.
func parseAppointmentDate(text string) (civil.Date, bool) {
	m := appointmentDateRe.FindStringSubmatch(text)
	if m == nil {
		return civil.Date{}, false
	}
	t, err := time.Parse("2 January, 2006", m[1])
	if err != nil {
		return civil.Date{}, false
	}
	return civil.DateOf(t), true
}
