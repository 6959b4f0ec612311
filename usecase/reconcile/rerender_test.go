package reconcile

import (
	"fmt"
	"strings"
	"testing"

	"github.com/AzielCF/az-compare/infrastructure/page"
	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vendorCards(codes ...string) string {
	var b strings.Builder
	b.WriteString(`<html><head><link rel="canonical" href="https://sf.test/list"></head><body><main><ul>`)
	for _, c := range codes {
		fmt.Fprintf(&b, `<li class="vendor-card"><a href="/restaurant/menu/x-r-%s/">%s</a></li>`, c, c)
	}
	b.WriteString(`</ul></main></body></html>`)
	return b.String()
}

func badgeKeys(t *testing.T, doc *page.Document) map[string]string {
	t.Helper()
	out, err := doc.Render()
	require.NoError(t, err)
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(out))
	require.NoError(t, err)

	keys := make(map[string]string)
	parsed.Find("li.vendor-card").Each(func(_ int, li *goquery.Selection) {
		key, _ := li.Attr("data-pd-key")
		keys[li.Find("a").Text()] = key
	})
	return keys
}

func TestScheduler_RerenderedListKeepsBadgesOnTheirVendors(t *testing.T) {
	loop := startLoop(t)
	doc, err := page.Parse(strings.NewReader(vendorCards("AAA", "BBB")), page.Options{})
	require.NoError(t, err)
	sink := &recordingSink{}
	s := NewScheduler(Config{}, loop, doc, readySession(), newRatings(), sink)

	onLoop(t, loop, s.Request)
	waitPasses(t, sink, 1)
	require.Equal(t, 2, sink.passes()[0].Decorated)

	require.NoError(t, doc.Replace(strings.NewReader(vendorCards("CCC", "AAA", "BBB"))))
	onLoop(t, loop, s.Request)
	waitPasses(t, sink, 2)

	second := sink.passes()[1]
	assert.Equal(t, 1, second.Decorated)
	assert.Equal(t, 2, second.Duplicates)
	assert.Equal(t, map[string]string{
		"CCC": "CCC|none|false|false",
		"AAA": "AAA|none|false|false",
		"BBB": "BBB|none|false|false",
	}, badgeKeys(t, doc))
}
