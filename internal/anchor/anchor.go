// Package anchor maps persisted-node identity to inline marker comments so
// identity survives a switch into raw-source editing and back.
package anchor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kerim/docsync/internal/fragment"
)

// Marker returns the identity marker line for a node id, without the
// trailing newline.
func Marker(id string) string { return "<!--anchor:" + id + "-->" }

// The capture is deliberately loose; ids are validated per match so one
// malformed marker cannot corrupt the offsets of the ones after it.
var markerRe = regexp.MustCompile(`(?m)^<!--anchor:([^>\n]*)-->\n`)

// Mapping records where a node's heading line sits in the cleaned text.
type Mapping struct {
	ID           string `json:"id"`
	HeaderOffset int    `json:"header_offset"`
}

// ExtractResult is the cleaned markdown plus one mapping per valid marker.
type ExtractResult struct {
	Markdown string
	Mappings []Mapping
}

// Inject inserts a marker line immediately before each node's heading line.
// Nodes are processed in descending offset order so earlier insertions don't
// shift the offsets of not-yet-processed ones. Nodes with out-of-range
// offsets or empty ids are skipped.
func Inject(src string, nodes []fragment.Node) string {
	sorted := make([]fragment.Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })

	out := src
	for _, n := range sorted {
		if n.ID == "" || n.Start < 0 || n.Start > len(src) {
			continue
		}
		out = out[:n.Start] + Marker(n.ID) + "\n" + out[n.Start:]
	}
	return out
}

// Extract strips all valid markers in a single regex pass. Each mapping's
// offset is the marker's position in the post-removal text, computed by
// subtracting the cumulative length of markers already removed before it.
// Malformed markers are left in place rather than risking offset corruption.
func Extract(src string) ExtractResult {
	var res ExtractResult
	var b strings.Builder
	last, removed := 0, 0

	for _, m := range markerRe.FindAllStringSubmatchIndex(src, -1) {
		id := src[m[2]:m[3]]
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		b.WriteString(src[last:m[0]])
		res.Mappings = append(res.Mappings, Mapping{ID: id, HeaderOffset: m[0] - removed})
		removed += m[1] - m[0]
		last = m[1]
	}
	b.WriteString(src[last:])
	res.Markdown = b.String()
	return res
}
