// Package managed carves generator-owned regions (bibliography, notes) out
// of the general fragment list so the reconciler never treats auto-written
// content as user edits.
package managed

import (
	"regexp"
	"strings"

	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/fragmenter"
)

// Marker comments written by the region generators. A heading immediately
// preceded by one of these is managed regardless of its title.
const (
	BibliographyMarker = "<!--bibliography-->"
	NotesMarker        = "<!--notes-->"
)

// Config carries the previously known managed heading titles. An empty title
// means that kind has not been seen yet for this document.
type Config struct {
	BibliographyTitle string
	NotesTitle        string
}

// Region is one excluded document span, from its marker (or heading) to the
// next heading or end of document.
type Region struct {
	Kind    fragment.ManagedKind
	Title   string
	Level   int
	Start   int
	End     int
	Content string
}

var footnoteDefRe = regexp.MustCompile(`(?m)^\[\^[^\]]+\]:`)

var markerLineRe = regexp.MustCompile(`(?m)^(<!--bibliography-->|<!--notes-->)\n`)

// Carve removes managed regions from the fragment list, clips the fragment
// preceding each region to end exactly at the region start, renumbers
// positions, and returns the regions in document order.
func Carve(src string, frags []fragment.Fragment, cfg Config) ([]fragment.Fragment, []Region) {
	var kept []fragment.Fragment
	var regions []Region

	i := 0
	for i < len(frags) {
		f := frags[i]
		// Region extent: up to the next heading (including its marker line,
		// if any) or end of document.
		end := len(src)
		next := len(frags)
		for j := i + 1; j < len(frags); j++ {
			if frags[j].Kind == fragment.KindHeading {
				end = regionStart(src, frags[j])
				next = j
				break
			}
		}

		kind := regionKind(src, f, src[f.Start:end], cfg)
		if kind == fragment.ManagedNone {
			kept = append(kept, f)
			i++
			continue
		}

		start := regionStart(src, f)
		regions = append(regions, Region{
			Kind:    kind,
			Title:   f.Title,
			Level:   f.Level,
			Start:   start,
			End:     end,
			Content: src[start:end],
		})

		// Drop any already-kept fragment that lies entirely inside the
		// region (a marker line parsed as its own fragment), then clip the
		// one whose end would otherwise swallow the region.
		for len(kept) > 0 && kept[len(kept)-1].Start >= start {
			kept = kept[:len(kept)-1]
		}
		if n := len(kept); n > 0 && kept[n-1].End > start {
			kept[n-1].End = start
			kept[n-1].Content = src[kept[n-1].Start:start]
			kept[n-1].WordCount = fragmenter.Words(kept[n-1].Content)
		}
		i = next
	}

	for p := range kept {
		kept[p].Position = p
	}
	return kept, regions
}

// regionKind decides whether a heading starts a managed region. Bibliography
// requires a previously known title or an explicit marker; a heading titled
// "Notes" is additionally sniffed by its body, since footnote-definition
// syntax is a reliable positive signal where bibliography headings are not.
func regionKind(src string, f fragment.Fragment, body string, cfg Config) fragment.ManagedKind {
	if f.Kind != fragment.KindHeading {
		return fragment.ManagedNone
	}
	if cfg.BibliographyTitle != "" && f.Title == cfg.BibliographyTitle {
		return fragment.ManagedBibliography
	}
	if cfg.NotesTitle != "" && f.Title == cfg.NotesTitle {
		return fragment.ManagedNotes
	}
	switch markerBefore(src, f.Start) {
	case BibliographyMarker:
		return fragment.ManagedBibliography
	case NotesMarker:
		return fragment.ManagedNotes
	}
	if cfg.NotesTitle == "" && f.Title == "Notes" && footnoteDefRe.MatchString(body) {
		return fragment.ManagedNotes
	}
	return fragment.ManagedNone
}

// regionStart returns where a managed heading's region begins: the marker
// line when one immediately precedes the heading, the heading line otherwise.
func regionStart(src string, f fragment.Fragment) int {
	ls, marker := precedingLine(src, f.Start)
	if marker == BibliographyMarker || marker == NotesMarker {
		return ls
	}
	return f.Start
}

// markerBefore returns the literal marker comment on the line immediately
// preceding offset, or "".
func markerBefore(src string, offset int) string {
	_, line := precedingLine(src, offset)
	if line == BibliographyMarker || line == NotesMarker {
		return line
	}
	return ""
}

func precedingLine(src string, offset int) (int, string) {
	if offset <= 0 || offset > len(src) || src[offset-1] != '\n' {
		return -1, ""
	}
	ls := strings.LastIndexByte(src[:offset-1], '\n') + 1
	return ls, src[ls : offset-1]
}

// StripMarkers removes the managed-region marker lines for export.
func StripMarkers(src string) string {
	return markerLineRe.ReplaceAllString(src, "")
}
