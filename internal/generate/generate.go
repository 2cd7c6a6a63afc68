// Package generate owns the auto-written document regions. Each generator
// re-derives its section from the document body and writes it back as
// ordinary text, re-entering the primary sync pipeline. Output is stable:
// regenerating an already-generated document changes nothing, which bounds
// the feedback loop.
package generate

import (
	"strings"

	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/fragmenter"
	"github.com/kerim/docsync/internal/managed"
)

// Generator derives one managed section from the document body. The prior
// region, when present, lets a generator preserve user-visible bits such as
// existing note text. ok is false when the document no longer needs the
// section at all.
type Generator interface {
	Kind() fragment.ManagedKind
	Generate(body string, prior *managed.Region) (section string, ok bool)
}

// Run applies every generator to the document and returns the updated text.
// Regions are re-detected after each splice so offsets stay valid.
func Run(doc string, frag fragmenter.Interface, cfg managed.Config, gens []Generator) (string, bool) {
	changed := false
	for _, g := range gens {
		frags := frag.Parse(doc)
		_, regions := managed.Carve(doc, frags, cfg)

		var prior *managed.Region
		for i := range regions {
			if regions[i].Kind == g.Kind() {
				prior = &regions[i]
				break
			}
		}

		section, ok := g.Generate(bodyWithoutRegions(doc, regions), prior)
		switch {
		case !ok && prior == nil:
			// Nothing to generate and nothing present.
		case !ok:
			doc = doc[:prior.Start] + doc[prior.End:]
			changed = true
		case prior == nil:
			doc = appendSection(doc, section)
			changed = true
		default:
			// Trailing blank lines before the next section are layout, not
			// generator output; ignoring them keeps regeneration stable.
			current := doc[prior.Start:prior.End]
			if strings.TrimRight(current, "\n") != strings.TrimRight(section, "\n") {
				doc = doc[:prior.Start] + section + doc[prior.End:]
				changed = true
			}
		}
	}
	return doc, changed
}

// bodyWithoutRegions strips every managed span so references inside one
// generated region never feed another.
func bodyWithoutRegions(doc string, regions []managed.Region) string {
	if len(regions) == 0 {
		return doc
	}
	var b strings.Builder
	last := 0
	for _, r := range regions {
		if r.Start > last {
			b.WriteString(doc[last:r.Start])
		}
		if r.End > last {
			last = r.End
		}
	}
	if last < len(doc) {
		b.WriteString(doc[last:])
	}
	return b.String()
}

func appendSection(doc string, section string) string {
	switch {
	case doc == "":
		return section
	case strings.HasSuffix(doc, "\n\n"):
		return doc + section
	case strings.HasSuffix(doc, "\n"):
		return doc + "\n" + section
	default:
		return doc + "\n\n" + section
	}
}
