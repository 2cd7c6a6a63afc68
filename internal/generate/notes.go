package generate

import (
	"regexp"
	"strings"

	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/managed"
)

var (
	footnoteRefRe = regexp.MustCompile(`\[\^([^\]\s]+)\]`)
	footnoteDefRe = regexp.MustCompile(`(?m)^\[\^([^\]\s]+)\]:[ \t]*(.*)$`)
)

// Notes regenerates the footnote section: one definition line per footnote
// referenced in the body, in order of first appearance. Existing definition
// text is preserved; new references get an empty definition to fill in.
type Notes struct {
	Title string // heading text, default "Notes"
}

func (g Notes) Kind() fragment.ManagedKind { return fragment.ManagedNotes }

func (g Notes) Generate(body string, prior *managed.Region) (string, bool) {
	refs := referencedFootnotes(body)
	if len(refs) == 0 {
		return "", false
	}

	defs := map[string]string{}
	for _, m := range footnoteDefRe.FindAllStringSubmatch(body, -1) {
		defs[m[1]] = m[2]
	}
	if prior != nil {
		for _, m := range footnoteDefRe.FindAllStringSubmatch(prior.Content, -1) {
			defs[m[1]] = m[2]
		}
	}

	title := g.Title
	if title == "" {
		title = "Notes"
	}
	var b strings.Builder
	b.WriteString(managed.NotesMarker)
	b.WriteString("\n## ")
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, id := range refs {
		b.WriteString("[^")
		b.WriteString(id)
		b.WriteString("]: ")
		b.WriteString(defs[id])
		b.WriteString("\n")
	}
	return b.String(), true
}

// referencedFootnotes returns the unique footnote ids referenced in body, in
// order of first appearance. Definition lines also match the reference
// pattern, so matches followed by a colon are skipped.
func referencedFootnotes(body string) []string {
	var refs []string
	seen := map[string]bool{}
	for _, m := range footnoteRefRe.FindAllStringSubmatchIndex(body, -1) {
		if m[1] < len(body) && body[m[1]] == ':' {
			continue
		}
		id := body[m[2]:m[3]]
		if !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
	}
	return refs
}
