package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVQD(t *testing.T) {
	cases := map[string]string{
		`<script>vqd='4-1234_abc'</script>`:             "4-1234_abc",
		`{"vqd":"x", vqd="4-9876_xyz"}`:                 "4-9876_xyz",
		`nrj('/d.js?q=monitors&vqd=4-abc123&kl=wt-wt')`: "4-abc123",
		`<html>nothing here</html>`:                     "",
	}
	for body, want := range cases {
		assert.Equal(t, want, extractVQD(body), body)
	}
}

func TestParseDDGResponse(t *testing.T) {
	t.Run("jsonp wrapper", func(t *testing.T) {
		data := `DDG.pageLayout.load('d',[
			{"t":"<b>Best</b> 1440p monitor?","a":"asked in <i>r/monitors</i>","u":"https://www.reddit.com/r/monitors/comments/1abc2d/best/"},
			{"t":"Ad","a":"","u":"https://duckduckgo.com/y.js?ad_provider=x"},
			{"t":"","a":"","u":"https://www.reddit.com/r/x/comments/zzz/"},
			{"t":"Fallback url","a":"","u":"","c":"https://www.reddit.com/r/buildapc/comments/9xy/"}
		]);`
		hits, err := parseDDGResponse([]byte(data))
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "Best 1440p monitor?", hits[0].Title)
		assert.Equal(t, "asked in r/monitors", hits[0].Content)
		assert.Equal(t, "https://www.reddit.com/r/buildapc/comments/9xy/", hits[1].URL)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseDDGResponse([]byte("rate limited"))
		assert.ErrorContains(t, err, "ddg json parse")
	})
}

func TestParseDDGHTML(t *testing.T) {
	page := `<html><body>
		<div class="result result--ad">
			<a class="result__a" href="https://ads.example.com/buy">Sponsored</a>
		</div>
		<div class="result">
			<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.reddit.com%2Fr%2Fmonitors%2Fcomments%2F1abc2d%2Fbest%2F&rut=x">Best monitors</a>
			<a class="result__snippet">Looking for advice.</a>
		</div>
		<div class="web-result">
			<h2 class="result__title"><a href="https://old.reddit.com/r/golang/comments/2def/">Direct</a></h2>
		</div>
		<div class="result">
			<a class="result__a" href="/relative">Dropped</a>
		</div>
	</body></html>`

	hits, err := parseDDGHTML([]byte(page))
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://www.reddit.com/r/monitors/comments/1abc2d/best/", hits[0].URL)
	assert.Equal(t, "Looking for advice.", hits[0].Content)
	assert.Equal(t, "https://old.reddit.com/r/golang/comments/2def/", hits[1].URL)

	none, err := parseDDGHTML([]byte(`<p>No results</p>`))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDDGUnwrapURL(t *testing.T) {
	assert.Equal(t, "https://youtu.be/abc", ddgUnwrapURL("//duckduckgo.com/l/?uddg=https%3A%2F%2Fyoutu.be%2Fabc&rut=1"))
	assert.Equal(t, "https://www.reddit.com/x", ddgUnwrapURL("https://www.reddit.com/x"))
	assert.Empty(t, ddgUnwrapURL(""))
	assert.Empty(t, ddgUnwrapURL("/relative/path"))
}

func TestDDGDiscoverer_NoClient(t *testing.T) {
	_, err := (&DDGDiscoverer{}).Discover(context.Background(), "q", 3)
	assert.ErrorContains(t, err, "no browser client")
}

func TestSiteQuery(t *testing.T) {
	assert.Equal(t, "monitors site:reddit.com", siteQuery("monitors", "reddit.com"))
	assert.Equal(t, "monitors site:old.reddit.com", siteQuery("monitors site:old.reddit.com", "reddit.com"))
	assert.Equal(t, "monitors", siteQuery("monitors", ""))
}

func TestCleanHTML(t *testing.T) {
	assert.Equal(t, "bold text", CleanHTML("<b>bold</b> text"))
	assert.Equal(t, "link", CleanHTML(`<a href="u">link</a>`))
	assert.Empty(t, CleanHTML(""))
}
