package fragmenter

import (
	"strings"
	"testing"

	"github.com/kerim/docsync/internal/fragment"
)

func concat(frags []fragment.Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		b.WriteString(f.Content)
	}
	return b.String()
}

func TestParse_ConcreteTwoSections(t *testing.T) {
	src := "# A\n\nhello\n\n# B\n\nworld\n"
	frags := Section{}.Parse(src)

	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if frags[0].Title != "A" || frags[1].Title != "B" {
		t.Errorf("titles: got %q, %q", frags[0].Title, frags[1].Title)
	}
	if frags[0].Content != "# A\n\nhello\n\n" {
		t.Errorf("fragment 0 content: %q", frags[0].Content)
	}
	if frags[1].Content != "# B\n\nworld\n" {
		t.Errorf("fragment 1 content: %q", frags[1].Content)
	}
	for i, f := range frags {
		if f.Position != i {
			t.Errorf("fragment %d: position %d", i, f.Position)
		}
		if f.Kind != fragment.KindHeading || f.Level != 1 {
			t.Errorf("fragment %d: kind %q level %d", i, f.Kind, f.Level)
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"plain text with no structure",
		"   \n\n  \n",
		"# A\n\nhello\n\n# B\n\nworld\n",
		"\n\n# Leading blanks\n\nbody\n",
		"preface\n\n# One\n\ntext\n\n## Two\n\nmore\n\n<!--break-->\n\ntail",
		"```\n# not a heading\ncode\n```\n\nafter\n",
		"| a | b |\n|---|---|\n| 1 | 2 |\n\nafter table\n",
		"[^1]: a footnote\n\n    with continuation\n\nnext paragraph\n",
		"<!--caption: A map-->\n\n![Map](map.png)\n\nafter\n",
		"no trailing newline at all",
		"# Unicode éè\n\ndéjà vu \U0001F600\n",
	}
	for _, granularity := range []Granularity{GranularitySection, GranularityBlock} {
		p := New(granularity)
		for _, src := range inputs {
			frags := p.Parse(src)
			if got := concat(frags); got != src {
				t.Errorf("%s: round trip failed:\ninput:  %q\noutput: %q", granularity, src, got)
			}
			for i := 0; i+1 < len(frags); i++ {
				if frags[i].End != frags[i+1].Start {
					t.Errorf("%s: fragment %d end %d != fragment %d start %d",
						granularity, i, frags[i].End, i+1, frags[i+1].Start)
				}
			}
			if n := len(frags); n > 0 && frags[n-1].End != len(src) {
				t.Errorf("%s: last fragment end %d != len %d", granularity, frags[n-1].End, len(src))
			}
		}
	}
}

func TestParse_EmptyInput(t *testing.T) {
	if frags := (Section{}).Parse(""); len(frags) != 0 {
		t.Errorf("expected no fragments for empty input, got %d", len(frags))
	}
}

func TestParse_WhitespaceOnlyDegradesToParagraph(t *testing.T) {
	src := "  \n\n \n"
	frags := Section{}.Parse(src)
	if len(frags) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(frags))
	}
	if frags[0].Kind != fragment.KindParagraph || frags[0].Content != src {
		t.Errorf("got kind %q content %q", frags[0].Kind, frags[0].Content)
	}
}

func TestParse_HashWithoutSpaceIsNotHeading(t *testing.T) {
	frags := Section{}.Parse("#tag and some text\n")
	if len(frags) != 1 || frags[0].Kind != fragment.KindParagraph {
		t.Fatalf("expected one paragraph, got %+v", frags)
	}
}

func TestParse_HeadingInsideFenceIgnored(t *testing.T) {
	src := "intro\n\n```\n# not a heading\n```\n\n# Real\n\nbody\n"
	frags := Section{}.Parse(src)
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if frags[1].Title != "Real" {
		t.Errorf("expected second fragment %q, got %q", "Real", frags[1].Title)
	}
}

func TestParse_HeadingLikeTableRowIgnored(t *testing.T) {
	src := "| col |\n| # x |\n\nafter\n"
	frags := Block{}.Parse(src)
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if frags[0].Kind != fragment.KindTable {
		t.Errorf("expected table, got %q", frags[0].Kind)
	}
}

func TestParse_PseudoBreakInheritsHeadingLevel(t *testing.T) {
	src := "## Two\n\ntext\n\n<!--break-->\n\nmore words here\n\n<!--break-->\n\nagain\n"
	frags := Section{}.Parse(src)
	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}
	for i := 1; i <= 2; i++ {
		if frags[i].Kind != fragment.KindPseudoBreak {
			t.Fatalf("fragment %d: kind %q", i, frags[i].Kind)
		}
		// Breaks inherit from the nearest real heading, and a break does not
		// reset that level for the next one.
		if frags[i].Level != 2 {
			t.Errorf("fragment %d: level %d, want 2", i, frags[i].Level)
		}
	}
	if frags[1].Title != "more words here" {
		t.Errorf("break title: %q", frags[1].Title)
	}
}

func TestParse_PseudoBreakBeforeAnyHeadingDefaultsToLevelOne(t *testing.T) {
	frags := Section{}.Parse("<!--break-->\n\nsome text\n")
	if len(frags) != 1 || frags[0].Level != 1 {
		t.Fatalf("expected one level-1 break, got %+v", frags)
	}
}

func TestParse_PseudoBreakTitleTruncatesAtWordBoundary(t *testing.T) {
	src := "<!--break-->\n\nThe quick brown fox jumps over the lazy dog near the river\n"
	frags := Section{}.Parse(src)
	title := frags[0].Title
	if !strings.HasSuffix(title, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", title)
	}
	trimmed := strings.TrimSuffix(title, "…")
	if len([]rune(trimmed)) > 30 {
		t.Errorf("title too long: %q", title)
	}
	if strings.HasSuffix(trimmed, " ") || !strings.HasPrefix(src[len("<!--break-->\n\n"):], trimmed) {
		t.Errorf("title not cut at a word boundary: %q", title)
	}
}

func TestParse_PseudoBreakTitleStripsMarkdown(t *testing.T) {
	src := "<!--break-->\n\n**Bold** and [a link](http://x)\n"
	frags := Section{}.Parse(src)
	if frags[0].Title != "Bold and a link" {
		t.Errorf("title: %q", frags[0].Title)
	}
}

func TestParse_PseudoBreakWithoutBodyFallsBack(t *testing.T) {
	frags := Section{}.Parse("# A\n\ntext\n\n<!--break-->\n")
	last := frags[len(frags)-1]
	if last.Title != "Untitled" {
		t.Errorf("expected fallback title, got %q", last.Title)
	}
}

func TestParse_BlockKinds(t *testing.T) {
	src := strings.Join([]string{
		"plain paragraph",
		"- item one\n- item two",
		"1. first\n2. second",
		"> a quote",
		"```\ncode\n```",
		"| a |\n| b |",
		"![Alt text](pic.png)",
		"---",
	}, "\n\n") + "\n"

	frags := Block{}.Parse(src)
	want := []fragment.Kind{
		fragment.KindParagraph,
		fragment.KindList,
		fragment.KindList,
		fragment.KindQuote,
		fragment.KindCodeBlock,
		fragment.KindTable,
		fragment.KindImage,
		fragment.KindRule,
	}
	if len(frags) != len(want) {
		t.Fatalf("expected %d fragments, got %d", len(want), len(frags))
	}
	for i, k := range want {
		if frags[i].Kind != k {
			t.Errorf("fragment %d: kind %q, want %q", i, frags[i].Kind, k)
		}
	}
	img := frags[6]
	if img.ImageSrc != "pic.png" || img.ImageAlt != "Alt text" {
		t.Errorf("image fields: src %q alt %q", img.ImageSrc, img.ImageAlt)
	}
	if img.Title != "Alt text" {
		t.Errorf("image title: %q", img.Title)
	}
}

func TestParse_FootnoteAbsorbsIndentedContinuation(t *testing.T) {
	src := "[^1]: first paragraph\n\n    second paragraph of the note\n\nordinary text\n"
	frags := Block{}.Parse(src)
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d: %+v", len(frags), frags)
	}
	if !strings.Contains(frags[0].Content, "second paragraph") {
		t.Errorf("continuation split out of footnote fragment: %q", frags[0].Content)
	}
}

func TestParse_FootnoteWithoutContinuationSplitsNormally(t *testing.T) {
	src := "[^1]: just one line\n\nunindented paragraph\n"
	frags := Block{}.Parse(src)
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
}

func TestParse_CaptionStaysWithImage(t *testing.T) {
	src := "<!--caption: A map of the area-->\n\n![Map](map.png)\n\nafter\n"
	frags := Block{}.Parse(src)
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if frags[0].Kind != fragment.KindImage {
		t.Errorf("caption fragment kind: %q", frags[0].Kind)
	}
	if frags[0].ImageSrc != "map.png" {
		t.Errorf("image src: %q", frags[0].ImageSrc)
	}
	if !strings.Contains(frags[0].Content, "![Map]") {
		t.Errorf("image not absorbed: %q", frags[0].Content)
	}
}

func TestParse_SectionGranularityKeepsBodyWithHeading(t *testing.T) {
	src := "# One\n\npara a\n\npara b\n\n- list\n\n# Two\n\nx\n"
	frags := Section{}.Parse(src)
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if !strings.Contains(frags[0].Content, "para b") || !strings.Contains(frags[0].Content, "- list") {
		t.Errorf("section body split: %q", frags[0].Content)
	}
}

func TestParse_WordCount(t *testing.T) {
	frags := Section{}.Parse("# Title Here\n\none two **three** four\n")
	if len(frags) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(frags))
	}
	// Heading text counts toward the section's words.
	if frags[0].WordCount != 6 {
		t.Errorf("word count: %d, want 6", frags[0].WordCount)
	}
}
