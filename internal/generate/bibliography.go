package generate

import (
	"regexp"
	"strings"

	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/managed"
)

var citationRe = regexp.MustCompile(`\[@([A-Za-z0-9_:.+/-]+)\]`)

// Bibliography regenerates the references section from the citation keys
// cited in the body, in order of first appearance. Entries are plain key
// placeholders; resolving keys against a citation service is out of scope.
type Bibliography struct {
	Title string // heading text, default "References"
}

func (g Bibliography) Kind() fragment.ManagedKind { return fragment.ManagedBibliography }

func (g Bibliography) Generate(body string, prior *managed.Region) (string, bool) {
	var keys []string
	seen := map[string]bool{}
	for _, m := range citationRe.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	if len(keys) == 0 {
		return "", false
	}

	title := g.Title
	if title == "" {
		title = "References"
	}
	var b strings.Builder
	b.WriteString(managed.BibliographyMarker)
	b.WriteString("\n## ")
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, key := range keys {
		b.WriteString("- [@")
		b.WriteString(key)
		b.WriteString("]\n")
	}
	return b.String(), true
}
