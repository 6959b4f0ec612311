package page

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// node is an element reported to mutation observers.
type node struct {
	doc *Document
	sel *goquery.Selection
}

func (n node) Matches(selector string) bool {
	n.doc.mu.Lock()
	defer n.doc.mu.Unlock()
	return n.sel.Is(selector)
}

func (d *Document) scoped(root string) bool {
	if root == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Find(root).Length() > 0
}

func (d *Document) within(sel *goquery.Selection, root string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return sel.Closest(root).Length() > 0
}

// identity is the nth-child path of n. It doubles as a selector that finds
// the same position in a re-parsed document.
func identity(n *html.Node) string {
	var parts []string
	for c := n; c != nil && c.Type == html.ElementNode; c = c.Parent {
		if c.Parent == nil || c.Parent.Type != html.ElementNode {
			parts = append(parts, c.Data)
			break
		}
		parts = append(parts, fmt.Sprintf("%s:nth-child(%d)", c.Data, childIndex(c)))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func childIndex(n *html.Node) int {
	idx := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			idx++
		}
	}
	return idx
}

// signature identifies an element by position and the attributes that
// matter for reconciliation. Text changes are not tracked.
func signature(sel *goquery.Selection) string {
	n := sel.Get(0)
	class, _ := sel.Attr("class")
	href, _ := sel.Attr("href")
	code, _ := sel.Attr(attrVendorCode)
	return identity(n) + "|" + class + "|" + href + "|" + code
}

type element struct {
	sig string
	sel *goquery.Selection
}

// scan returns the signature set of the body and its elements in document order.
func scan(doc *goquery.Document) (map[string]struct{}, []element) {
	sigs := make(map[string]struct{})
	var elements []element
	doc.Find("body *").Each(func(_ int, sel *goquery.Selection) {
		sig := signature(sel)
		sigs[sig] = struct{}{}
		elements = append(elements, element{sig: sig, sel: sel})
	})
	return sigs, elements
}

// addedSince returns the elements whose signature was not present before.
func addedSince(previous map[string]struct{}, elements []element) []*goquery.Selection {
	var added []*goquery.Selection
	for _, e := range elements {
		if _, ok := previous[e.sig]; !ok {
			added = append(added, e.sel)
		}
	}
	return added
}

func attached(n *html.Node, doc *goquery.Document) bool {
	root := doc.Get(0)
	for c := n; c != nil; c = c.Parent {
		if c == root {
			return true
		}
	}
	return false
}
