// Package fragmenter splits a markdown buffer into an ordered list of typed
// fragments with byte offsets. Parsing is total: it never fails, and the
// concatenated fragment contents reproduce the input exactly.
package fragmenter

import (
	"regexp"
	"strings"

	"github.com/kerim/docsync/internal/fragment"
)

// BreakMarker is the sentinel line a user inserts to start a new section
// without a heading.
const BreakMarker = "<!--break-->"

// untitled is the title fallback when a pseudo-break has no body text.
const untitled = "Untitled"

// titleLimit is the rune budget for derived titles before word-boundary
// truncation kicks in.
const titleLimit = 30

// Granularity selects how fine the fragment boundaries are.
type Granularity string

const (
	// GranularitySection delimits fragments at headings and pseudo-breaks only.
	GranularitySection Granularity = "section"
	// GranularityBlock additionally delimits blank-line-separated blocks.
	GranularityBlock Granularity = "block"
)

// Interface produces the ordered fragment list for a document.
type Interface interface {
	Parse(src string) []fragment.Fragment
}

// New returns the fragmenter for a granularity. Unknown values fall back to
// section granularity.
func New(g Granularity) Interface {
	if g == GranularityBlock {
		return Block{}
	}
	return Section{}
}

// Section splits at headings and pseudo-break sentinels.
type Section struct{}

func (Section) Parse(src string) []fragment.Fragment { return scan(src, false) }

// Block splits at headings, pseudo-breaks and blank-line block boundaries.
type Block struct{}

func (Block) Parse(src string) []fragment.Fragment { return scan(src, true) }

var (
	headingRe     = regexp.MustCompile(`^(#{1,6})\s+\S`)
	footnoteDefRe = regexp.MustCompile(`^\[\^[^\]]+\]:`)
	imageRe       = regexp.MustCompile(`^!\[([^\]]*)\]\(([^)\s]+)[^)]*\)`)
	bulletRe      = regexp.MustCompile(`^[-*+]\s`)
	orderedRe     = regexp.MustCompile(`^\d+[.)]\s`)
	ruleRe        = regexp.MustCompile(`^(\*{3,}|-{3,}|_{3,})\s*$`)
	captionRe     = regexp.MustCompile(`^<!--caption:.*-->\s*$`)
)

type line struct {
	start int
	text  string // without the trailing newline
}

func splitLines(src string) []line {
	var lines []line
	at := 0
	for at < len(src) {
		nl := strings.IndexByte(src[at:], '\n')
		if nl < 0 {
			lines = append(lines, line{at, src[at:]})
			break
		}
		lines = append(lines, line{at, src[at : at+nl]})
		at += nl + 1
	}
	return lines
}

func scan(src string, blocks bool) []fragment.Fragment {
	if src == "" {
		return nil
	}

	var frags []fragment.Fragment
	var curFirst string // first line of the fragment being built
	inFence := false
	inTable := false
	lastLevel := 0 // most recently seen real heading level
	gap := false   // blank line(s) seen since the last content line

	start := func(f fragment.Fragment, at int, first string) {
		f.Start = at
		frags = append(frags, f)
		curFirst = first
		gap = false
	}

	for _, ln := range splitLines(src) {
		t := ln.text
		if inFence {
			// Everything up to the closing fence is verbatim; headings are
			// not recognized here.
			if strings.HasPrefix(t, "```") {
				inFence = false
			}
			gap = false
			continue
		}
		if inTable {
			if strings.HasPrefix(t, "|") {
				gap = false
				continue
			}
			inTable = false
		}

		if strings.TrimSpace(t) == "" {
			if len(frags) > 0 {
				gap = true
			}
			continue
		}

		if m := headingRe.FindStringSubmatch(t); m != nil {
			level := len(m[1])
			start(fragment.Fragment{
				Kind:  fragment.KindHeading,
				Level: level,
				Title: headingTitle(t, level),
			}, ln.start, t)
			lastLevel = level
			continue
		}
		if t == BreakMarker {
			level := lastLevel
			if level == 0 {
				level = 1
			}
			// The sentinel inherits the ancestor level but does not update
			// lastLevel, so consecutive breaks all inherit the same one.
			start(fragment.Fragment{Kind: fragment.KindPseudoBreak, Level: level}, ln.start, t)
			continue
		}

		if strings.HasPrefix(t, "```") {
			if len(frags) == 0 || (blocks && gap) {
				start(blockFragment(t, blocks), ln.start, t)
			}
			inFence = true
			gap = false
			continue
		}
		if strings.HasPrefix(t, "|") {
			if len(frags) == 0 || (blocks && gap) {
				start(blockFragment(t, blocks), ln.start, t)
			}
			inTable = true
			gap = false
			continue
		}

		if len(frags) == 0 {
			// Preface before the first boundary.
			start(blockFragment(t, blocks), ln.start, t)
			continue
		}
		if blocks && gap {
			if absorbed(&frags[len(frags)-1], curFirst, t) {
				gap = false
				continue
			}
			start(blockFragment(t, blocks), ln.start, t)
			continue
		}
		gap = false
	}

	if len(frags) == 0 {
		// Whitespace-only or otherwise degenerate input: one paragraph
		// spanning the whole document.
		frags = []fragment.Fragment{{Kind: fragment.KindParagraph}}
	}

	// Second pass: end offsets, contents, positions, derived fields.
	frags[0].Start = 0 // leading blank lines belong to the first fragment
	for i := range frags {
		if i+1 < len(frags) {
			frags[i].End = frags[i+1].Start
		} else {
			frags[i].End = len(src)
		}
		frags[i].Position = i
		frags[i].Content = src[frags[i].Start:frags[i].End]
	}
	for i := range frags {
		f := &frags[i]
		f.WordCount = Words(f.Content)
		switch f.Kind {
		case fragment.KindHeading:
		case fragment.KindPseudoBreak:
			f.Title = pseudoTitle(frags, i)
		default:
			f.Title = derivedTitle(f)
		}
	}
	return frags
}

// blockFragment classifies a new fragment from its first non-blank line.
// Section granularity only ever opens paragraph fragments between headings.
func blockFragment(t string, blocks bool) fragment.Fragment {
	if !blocks {
		return fragment.Fragment{Kind: fragment.KindParagraph}
	}
	switch {
	case ruleRe.MatchString(t):
		return fragment.Fragment{Kind: fragment.KindRule}
	case imageRe.MatchString(t):
		m := imageRe.FindStringSubmatch(t)
		return fragment.Fragment{Kind: fragment.KindImage, ImageAlt: m[1], ImageSrc: m[2]}
	case strings.HasPrefix(t, "```"):
		return fragment.Fragment{Kind: fragment.KindCodeBlock}
	case strings.HasPrefix(t, "|"):
		return fragment.Fragment{Kind: fragment.KindTable}
	case strings.HasPrefix(t, ">"):
		return fragment.Fragment{Kind: fragment.KindQuote}
	case bulletRe.MatchString(t), orderedRe.MatchString(t):
		return fragment.Fragment{Kind: fragment.KindList}
	default:
		return fragment.Fragment{Kind: fragment.KindParagraph}
	}
}

// absorbed reports whether the line after a blank gap continues the current
// fragment instead of starting a new one. Two cases: multi-paragraph footnote
// bodies (4-space continuations), and a caption comment whose image follows
// after blank lines.
func absorbed(cur *fragment.Fragment, curFirst, next string) bool {
	if footnoteDefRe.MatchString(curFirst) && strings.HasPrefix(next, "    ") {
		return true
	}
	if captionRe.MatchString(curFirst) {
		if m := imageRe.FindStringSubmatch(next); m != nil {
			cur.Kind = fragment.KindImage
			cur.ImageAlt = m[1]
			cur.ImageSrc = m[2]
			return true
		}
	}
	return false
}

// headingTitle strips the leading #-run and one following space.
func headingTitle(t string, level int) string {
	rest := strings.TrimPrefix(t[level:], " ")
	return strings.TrimRight(rest, " \t")
}

// pseudoTitle derives a break's label from the body text that follows the
// sentinel, looking into the next fragment when the break itself is bare.
func pseudoTitle(frags []fragment.Fragment, i int) string {
	body := afterFirstLine(frags[i].Content)
	if strings.TrimSpace(body) == "" && i+1 < len(frags) {
		next := frags[i+1]
		if next.Kind != fragment.KindHeading && next.Kind != fragment.KindPseudoBreak {
			body = next.Content
		}
	}
	return truncatedTitle(body, untitled)
}

// derivedTitle labels non-heading fragments from their own text.
func derivedTitle(f *fragment.Fragment) string {
	if f.Kind == fragment.KindImage && strings.TrimSpace(f.ImageAlt) != "" {
		return strings.TrimSpace(f.ImageAlt)
	}
	return truncatedTitle(f.Content, untitled)
}

// truncatedTitle reduces markdown body text to a short plain-text label,
// truncated at a word boundary with an ellipsis.
func truncatedTitle(body, fallback string) string {
	words := strings.Fields(Extract(body))
	if len(words) == 0 {
		return fallback
	}
	first := []rune(words[0])
	if len(first) > titleLimit {
		return string(first[:titleLimit]) + "…"
	}
	title := words[0]
	for _, w := range words[1:] {
		if len([]rune(title))+1+len([]rune(w)) > titleLimit {
			return title + "…"
		}
		title += " " + w
	}
	return title
}

func afterFirstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return ""
}
