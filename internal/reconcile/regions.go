package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/kerim/docsync/internal/fragment"
	"github.com/kerim/docsync/internal/fragmenter"
	"github.com/kerim/docsync/internal/managed"
)

// managedSortBase pushes managed nodes past any ordinary position. Their
// content is concatenated by the owning generator, not by sortOrder.
const managedSortBase = 1 << 20

// RegionChanges reconciles generator-owned regions against their persisted
// managed nodes. A managed node keeps its id and title across regenerations;
// a kind that vanished from the document is deleted here (the rename/demotion
// path hands the node to the ordinary pool before this runs, so it never
// reaches this function).
func RegionChanges(regions []managed.Region, prior []fragment.Node) []Change {
	var changes []Change
	seen := map[fragment.ManagedKind]bool{}

	for i, reg := range regions {
		seen[reg.Kind] = true
		var node *fragment.Node
		for j := range prior {
			if prior[j].Managed == reg.Kind {
				node = &prior[j]
				break
			}
		}
		if node == nil {
			changes = append(changes, Change{Op: OpInsert, Node: &fragment.Node{
				ID:        uuid.NewString(),
				Title:     reg.Title,
				Level:     reg.Level,
				Kind:      fragment.KindHeading,
				Content:   reg.Content,
				WordCount: fragmenter.Words(reg.Content),
				Start:     reg.Start,
				SortOrder: managedSortBase + float64(i),
				Managed:   reg.Kind,
				CreatedAt: time.Now().UTC(),
			}})
			changes[len(changes)-1].ID = changes[len(changes)-1].Node.ID
			continue
		}

		d := &FieldDiff{}
		if reg.Title != node.Title {
			t := reg.Title
			d.Title = &t
		}
		if reg.Level != node.Level {
			l := reg.Level
			d.Level = &l
		}
		if reg.Content != node.Content {
			c := reg.Content
			d.Content = &c
			wc := fragmenter.Words(reg.Content)
			if wc != node.WordCount {
				d.WordCount = &wc
			}
		}
		if reg.Start != node.Start {
			s := reg.Start
			d.Start = &s
		}
		if !d.Empty() {
			changes = append(changes, Change{Op: OpUpdate, ID: node.ID, Diff: d})
		}
	}

	for i := range prior {
		if prior[i].Managed != fragment.ManagedNone && !seen[prior[i].Managed] {
			changes = append(changes, Change{Op: OpDelete, ID: prior[i].ID})
		}
	}
	return changes
}
