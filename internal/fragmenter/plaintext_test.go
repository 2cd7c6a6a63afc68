package fragmenter

import "testing"

func TestExtract_StripsInlineMarkdown(t *testing.T) {
	got := Extract("**bold** and *italic* and [a link](http://example.com)")
	want := "bold and italic and a link"
	if got != want {
		t.Errorf("Extract: %q, want %q", got, want)
	}
}

func TestExtract_CommentsDisappear(t *testing.T) {
	if got := Extract("<!--break-->"); got != "" {
		t.Errorf("expected empty extraction for a comment, got %q", got)
	}
}

func TestExtract_HTMLBlockTextContent(t *testing.T) {
	got := Extract("<div>Hello <b>world</b></div>")
	if got != "Hello\nworld" && got != "Hello world" {
		t.Errorf("html extraction: %q", got)
	}
}

func TestWords_CountsWhitespaceDelimitedTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one two three", 3},
		{"# Heading\n\nbody text here\n", 4},
		{"**bold** [link](u) plain", 3},
		{"<!--break-->\n\nafter break\n", 2},
	}
	for _, c := range cases {
		if got := Words(c.in); got != c.want {
			t.Errorf("Words(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
