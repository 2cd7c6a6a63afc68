package anchor

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kerim/docsync/internal/fragment"
)

func TestInjectExtract_Inverse(t *testing.T) {
	src := "# A\n\nhello\n\n# B\n\nworld\n"
	nodes := []fragment.Node{
		{ID: uuid.NewString(), Start: 0},
		{ID: uuid.NewString(), Start: strings.Index(src, "# B")},
	}

	injected := Inject(src, nodes)
	res := Extract(injected)

	if res.Markdown != src {
		t.Errorf("round trip:\nwant %q\ngot  %q", src, res.Markdown)
	}
	if len(res.Mappings) != len(nodes) {
		t.Fatalf("expected %d mappings, got %d", len(nodes), len(res.Mappings))
	}
	// Mappings come back in document order with original offsets.
	if res.Mappings[0].ID != nodes[0].ID || res.Mappings[0].HeaderOffset != 0 {
		t.Errorf("mapping 0: %+v", res.Mappings[0])
	}
	if res.Mappings[1].ID != nodes[1].ID || res.Mappings[1].HeaderOffset != nodes[1].Start {
		t.Errorf("mapping 1: %+v", res.Mappings[1])
	}
}

func TestInject_DescendingOrderKeepsOffsetsValid(t *testing.T) {
	src := "# A\n\n# B\n\n# C\n"
	nodes := []fragment.Node{
		// Deliberately unsorted input.
		{ID: uuid.NewString(), Start: strings.Index(src, "# B")},
		{ID: uuid.NewString(), Start: 0},
		{ID: uuid.NewString(), Start: strings.Index(src, "# C")},
	}
	injected := Inject(src, nodes)

	for _, n := range nodes {
		want := Marker(n.ID) + "\n# "
		if !strings.Contains(injected, want) {
			t.Errorf("marker for %s not directly before its heading:\n%s", n.ID, injected)
		}
	}
}

func TestInject_SkipsInvalidNodes(t *testing.T) {
	src := "# A\n"
	nodes := []fragment.Node{
		{ID: "", Start: 0},
		{ID: uuid.NewString(), Start: -1},
		{ID: uuid.NewString(), Start: len(src) + 10},
	}
	if got := Inject(src, nodes); got != src {
		t.Errorf("invalid nodes modified the text: %q", got)
	}
}

func TestExtract_MalformedMarkerLeftInPlace(t *testing.T) {
	good := uuid.NewString()
	src := "<!--anchor:not-a-uuid-->\n# A\n\n<!--anchor:" + good + "-->\n# B\n"
	res := Extract(src)

	if !strings.Contains(res.Markdown, "<!--anchor:not-a-uuid-->") {
		t.Errorf("malformed marker was removed: %q", res.Markdown)
	}
	if len(res.Mappings) != 1 || res.Mappings[0].ID != good {
		t.Fatalf("mappings: %+v", res.Mappings)
	}
	// Offset is relative to the cleaned text, which still carries the
	// malformed marker line.
	wantOff := strings.Index(res.Markdown, "# B")
	if res.Mappings[0].HeaderOffset != wantOff {
		t.Errorf("offset %d, want %d", res.Mappings[0].HeaderOffset, wantOff)
	}
}

func TestExtract_NoMarkers(t *testing.T) {
	src := "# A\n\nplain\n"
	res := Extract(src)
	if res.Markdown != src || len(res.Mappings) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestExtract_MarkerMidLineIgnored(t *testing.T) {
	src := "text <!--anchor:" + uuid.NewString() + "-->\nmore\n"
	res := Extract(src)
	if res.Markdown != src || len(res.Mappings) != 0 {
		t.Errorf("mid-line comment treated as marker: %+v", res)
	}
}
