// Package htmlinject splices the base-href and tracking snippet into a
// tour's entry page.
package htmlinject

import (
	"fmt"
	"html"
	"strings"
)

const closingHead = "</head>"

// Options describes the snippet.
type Options struct {
	// BaseHref is the public folder of the tour, e.g. "/h3panos/My-Tour/".
	BaseHref string
	// ScriptURL is the tracking script source. Empty omits the script tag.
	ScriptURL string
	// TourName is carried on the script tag as data-tour.
	TourName string
}

// IsEntryPage reports whether rel is the archive-root index page. The check
// is exact and case-sensitive, so "sub/index.html" does not qualify.
func IsEntryPage(rel string) bool {
	return rel == "index.htm" || rel == "index.html"
}

// Snippet renders the markup inserted before </head>.
func Snippet(opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<base href=\"%s\">\n", html.EscapeString(opts.BaseHref))
	if opts.ScriptURL != "" {
		fmt.Fprintf(&b, "<script src=\"%s\" data-tour=\"%s\" defer></script>\n",
			html.EscapeString(opts.ScriptURL), html.EscapeString(opts.TourName))
	}
	return b.String()
}

// Inject inserts the snippet immediately before the first </head>. Pages
// without one are returned unchanged.
func Inject(page []byte, opts Options) []byte {
	text := string(page)
	idx := strings.Index(text, closingHead)
	if idx < 0 {
		return page
	}
	snippet := Snippet(opts)
	out := make([]byte, 0, len(page)+len(snippet))
	out = append(out, text[:idx]...)
	out = append(out, snippet...)
	out = append(out, text[idx:]...)
	return out
}
