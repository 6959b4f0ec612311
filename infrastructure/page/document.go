// Package page adapts an HTML document on disk to the reconciliation engine.
// The file plays the part of a live page: it is re-read when it changes,
// decorations survive reloads and the decorated markup can be rendered back.
package page

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/AzielCF/az-compare/pkg/textnorm"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const (
	classDecorated   = "pd-decorated"
	classPaired      = "pd-paired"
	classHighRated   = "pd-high-rated"
	classBadge       = "pd-badge"
	attrKey          = "data-pd-key"
	attrVendorCode   = "data-vendor-code"
	attrRating       = "data-rating"
	defaultRatingSel = ".rating, [itemprop='ratingValue']"
)

var (
	defaultVendorCode = regexp.MustCompile(`-r-([0-9a-zA-Z]+)|/vendor/([0-9a-zA-Z]+)`)
	ratingNumber      = regexp.MustCompile(`[0-9]+(?:\.[0-9]+)?`)
)

type Options struct {
	// Location is reported when the document declares no canonical URL.
	Location          string
	RatingSelector    string
	VendorCodePattern *regexp.Regexp
}

// ledgerEntry remembers where a vendor's badge was placed so it can be put
// back after the markup is replaced.
type ledgerEntry struct {
	key  reconcile.DecorationKey
	path string
	tag  string
}

type observer struct {
	id   int
	root string
	fn   func(reconcile.MutationRecord)
}

// Document is a goquery-backed reconcile.PageAdapter.
type Document struct {
	mu   sync.Mutex
	path string
	opts Options
	doc  *goquery.Document

	location   string
	signatures map[string]struct{}
	// ledger holds one decoration per vendor code.
	ledger map[string]ledgerEntry

	observers []observer
	nextObs   int
}

// Open parses the HTML file at path.
func Open(path string, opts Options) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	d, err := Parse(f, opts)
	if err != nil {
		return nil, err
	}
	d.path = path
	if d.opts.Location == "" {
		d.opts.Location = "file://" + path
		d.location = d.resolveLocation()
	}
	return d, nil
}

// Parse reads a document from r. It cannot be reloaded.
func Parse(r io.Reader, opts Options) (*Document, error) {
	if opts.RatingSelector == "" {
		opts.RatingSelector = defaultRatingSel
	}
	if opts.VendorCodePattern == nil {
		opts.VendorCodePattern = defaultVendorCode
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	d := &Document{
		opts:   opts,
		doc:    doc,
		ledger: make(map[string]ledgerEntry),
	}
	d.location = d.resolveLocation()
	d.signatures, _ = scan(doc)
	return d, nil
}

// Reload re-reads the file, replays decorations and notifies observers of
// added elements. Decorations are dropped when the location changed.
func (d *Document) Reload() error {
	if d.path == "" {
		return fmt.Errorf("document has no backing file")
	}
	raw, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("reload document: %w", err)
	}
	return d.Replace(bytes.NewReader(raw))
}

// Replace swaps in new markup as if the page had re-rendered.
func (d *Document) Replace(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	sigs, elements := scan(doc)

	d.mu.Lock()
	added := addedSince(d.signatures, elements)
	d.doc = doc
	d.signatures = sigs

	location := d.resolveLocation()
	if location != d.location {
		d.ledger = make(map[string]ledgerEntry)
	}
	d.location = location
	d.replayLedger()
	observers := append([]observer(nil), d.observers...)
	d.mu.Unlock()

	logrus.Debugf("[PAGE] Reloaded %s: %d new elements", d.path, len(added))
	if len(added) == 0 {
		return nil
	}
	for _, o := range observers {
		rec := reconcile.MutationRecord{}
		scoped := d.scoped(o.root)
		for _, sel := range added {
			if scoped && !d.within(sel, o.root) {
				continue
			}
			rec.Added = append(rec.Added, node{doc: d, sel: sel})
		}
		if len(rec.Added) > 0 {
			o.fn(rec)
		}
	}
	return nil
}

// replayLedger puts every recorded badge back on the container that now
// holds its vendor. Entries whose vendor is gone are dropped.
func (d *Document) replayLedger() {
	claimed := make(map[*html.Node]struct{}, len(d.ledger))
	for code, entry := range d.ledger {
		sel := d.relocate(code, entry)
		if sel == nil {
			delete(d.ledger, code)
			continue
		}
		n := sel.Get(0)
		if _, taken := claimed[n]; taken {
			delete(d.ledger, code)
			continue
		}
		claimed[n] = struct{}{}
		if path := identity(n); path != entry.path {
			logrus.Debugf("[PAGE] Vendor %s moved from %s to %s", code, entry.path, path)
			entry.path = path
			d.ledger[code] = entry
		}
		applyDecoration(sel, entry.key)
	}
}

// relocate returns the recorded position when it still holds code, otherwise
// the nearest wrapper of the same tag around an element carrying code.
func (d *Document) relocate(code string, entry ledgerEntry) *goquery.Selection {
	if sel := d.doc.Find(entry.path).First(); sel.Length() > 0 && d.vendorCodeIn(sel) == code {
		return sel
	}
	var found *goquery.Selection
	d.doc.Find("["+attrVendorCode+"], a[href]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if d.ownCode(el) != code {
			return true
		}
		c := el.Closest(entry.tag).First()
		if c.Length() == 0 || c.Is("html, body") || d.vendorCodeIn(c) != code {
			return true
		}
		found = c
		return false
	})
	return found
}

func (d *Document) resolveLocation() string {
	if href, ok := d.doc.Find("link[rel='canonical']").First().Attr("href"); ok && href != "" {
		return href
	}
	if content, ok := d.doc.Find("meta[property='og:url']").First().Attr("content"); ok && content != "" {
		return content
	}
	return d.opts.Location
}

func (d *Document) CurrentLocation() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location
}

func (d *Document) QueryCandidates(selectors []string) []reconcile.Item {
	if len(selectors) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[*html.Node]struct{})
	var items []reconcile.Item
	// A union selector keeps document order across shapes.
	d.doc.Find(strings.Join(selectors, ", ")).Each(func(_ int, sel *goquery.Selection) {
		n := sel.Get(0)
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		items = append(items, reconcile.Item{Handle: sel, Identity: identity(n)})
	})
	return items
}

func (d *Document) ExtractVendorCode(item reconcile.Item) (string, bool) {
	sel, ok := item.Handle.(*goquery.Selection)
	if !ok {
		return "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if code, ok := sel.Attr(attrVendorCode); ok && code != "" {
		return code, true
	}
	if code, ok := sel.Closest("[" + attrVendorCode + "]").Attr(attrVendorCode); ok && code != "" {
		return code, true
	}
	href, ok := sel.Attr("href")
	if !ok {
		href, ok = sel.Find("a[href]").First().Attr("href")
	}
	if !ok {
		return "", false
	}
	code := d.codeFromHref(href)
	return code, code != ""
}

func (d *Document) codeFromHref(href string) string {
	m := d.opts.VendorCodePattern.FindStringSubmatch(href)
	if len(m) < 2 {
		return ""
	}
	// The first non-empty group wins, so patterns may use alternations.
	for _, group := range m[1:] {
		if group != "" {
			return group
		}
	}
	return ""
}

// ownCode reads the vendor code declared by el itself.
func (d *Document) ownCode(el *goquery.Selection) string {
	if code, ok := el.Attr(attrVendorCode); ok && code != "" {
		return code
	}
	if href, ok := el.Attr("href"); ok {
		return d.codeFromHref(href)
	}
	return ""
}

// vendorCodeIn returns the first vendor code found on sel or inside it.
func (d *Document) vendorCodeIn(sel *goquery.Selection) string {
	if code := d.ownCode(sel); code != "" {
		return code
	}
	var code string
	sel.Find("["+attrVendorCode+"], a[href]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		code = d.ownCode(el)
		return code == ""
	})
	return code
}

// ExtractRating reads a 0-5 rating from the item, its descendants or its siblings.
func (d *Document) ExtractRating(item reconcile.Item) (float64, bool) {
	sel, ok := item.Handle.(*goquery.Selection)
	if !ok {
		return 0, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if v, ok := sel.Attr(attrRating); ok {
		return parseRating(v)
	}
	r := sel.Find(d.opts.RatingSelector).First()
	if r.Length() == 0 {
		r = sel.SiblingsFiltered(d.opts.RatingSelector).First()
	}
	if r.Length() == 0 {
		return 0, false
	}
	if v, ok := r.Attr(attrRating); ok {
		return parseRating(v)
	}
	return parseRating(r.Text())
}

func parseRating(s string) (float64, bool) {
	m := ratingNumber.FindString(textnorm.Digits(s))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 || v > 5 {
		return 0, false
	}
	return v, true
}

// Fingerprint hashes the item's markup, so equal content shares cached work.
func (d *Document) Fingerprint(item reconcile.Item) string {
	sel, ok := item.Handle.(*goquery.Selection)
	if !ok {
		return ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	markup, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(markup))
	return strconv.FormatUint(h.Sum64(), 16)
}

// FindContainer returns the closest ancestor matching the first fallback
// that resolves to something other than the document root.
func (d *Document) FindContainer(item reconcile.Item, fallbacks []string) (reconcile.Handle, bool) {
	sel, ok := item.Handle.(*goquery.Selection)
	if !ok {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, fb := range fallbacks {
		c := sel.Closest(fb).First()
		if c.Length() == 0 || c.Is("html, body") {
			continue
		}
		return c, true
	}
	return nil, false
}

// ContainerIdentity is the container's position plus the vendor it holds, so a
// position reused by another vendor after a re-render is a new container.
func (d *Document) ContainerIdentity(container reconcile.Handle) string {
	sel, ok := container.(*goquery.Selection)
	if !ok || sel.Length() == 0 {
		return ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return identity(sel.Get(0)) + "#" + d.vendorCodeIn(sel)
}

// Decorate marks the container with key. Decorating twice with the same key
// changes nothing.
func (d *Document) Decorate(container reconcile.Handle, key reconcile.DecorationKey) error {
	sel, ok := container.(*goquery.Selection)
	if !ok || sel.Length() == 0 {
		return fmt.Errorf("invalid container handle %T", container)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n := sel.Get(0)
	if !attached(n, d.doc) {
		return fmt.Errorf("container %s is no longer in the document", identity(n))
	}
	applyDecoration(sel, key)
	d.ledger[key.VendorCode] = ledgerEntry{key: key, path: identity(n), tag: n.Data}
	return nil
}

func applyDecoration(sel *goquery.Selection, key reconcile.DecorationKey) {
	if current, ok := sel.Attr(attrKey); ok && current == key.String() {
		return
	}
	sel.RemoveClass(classPaired, classHighRated)
	sel.AddClass(classDecorated)
	if key.IsPaired {
		sel.AddClass(classPaired)
	}
	if key.IsHighRated {
		sel.AddClass(classHighRated)
	}
	sel.SetAttr(attrKey, key.String())
	sel.ChildrenFiltered("span." + classBadge).Remove()
	sel.AppendHtml(fmt.Sprintf(`<span class="%s" %s="%s">%s</span>`,
		classBadge, attrKey, html.EscapeString(key.String()), html.EscapeString(badgeLabel(key))))
}

func badgeLabel(key reconcile.DecorationKey) string {
	parts := make([]string, 0, 3)
	if key.IsPaired {
		parts = append(parts, "compare")
	}
	if key.RatingBucket != "" {
		parts = append(parts, "★"+key.RatingBucket)
	}
	if key.IsHighRated {
		parts = append(parts, "top")
	}
	if len(parts) == 0 {
		return "seen"
	}
	return strings.Join(parts, " · ")
}

// Observe registers fn for elements added by later reloads. When root is
// missing the whole document is observed.
func (d *Document) Observe(root string, fn func(reconcile.MutationRecord)) (func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	scoped := root != "" && d.doc.Find(root).Length() > 0
	d.nextObs++
	id := d.nextObs
	d.observers = append(d.observers, observer{id: id, root: root, fn: fn})

	stop := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, o := range d.observers {
			if o.id == id {
				d.observers = append(d.observers[:i], d.observers[i+1:]...)
				return
			}
		}
	}
	return stop, scoped
}

// Render returns the current markup, decorations included.
func (d *Document) Render() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Html()
}

func (d *Document) Save(path string) error {
	out, err := d.Render()
	if err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return os.Rename(tmp, path)
}

// Path returns the backing file, empty for parsed documents.
func (d *Document) Path() string {
	return d.path
}

var _ reconcile.PageAdapter = (*Document)(nil)
