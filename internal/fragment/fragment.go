package fragment

import "time"

// Kind classifies a fragment by its first non-blank line.
type Kind string

const (
	KindHeading     Kind = "heading"
	KindPseudoBreak Kind = "pseudo_break"
	KindParagraph   Kind = "paragraph"
	KindList        Kind = "list"
	KindTable       Kind = "table"
	KindCodeBlock   Kind = "code_block"
	KindQuote       Kind = "quote"
	KindImage       Kind = "image"
	KindRule        Kind = "rule"
)

// ManagedKind marks a fragment or node as belonging to a generator-owned region.
type ManagedKind string

const (
	ManagedNone         ManagedKind = ""
	ManagedBibliography ManagedKind = "bibliography"
	ManagedNotes        ManagedKind = "notes"
)

// Fragment is one freshly parsed unit of the document. Fragments are
// ephemeral: a new list is produced on every parse and carries no identity.
type Fragment struct {
	Position  int         `json:"position"`
	Kind      Kind        `json:"kind"`
	Level     int         `json:"level,omitempty"` // heading level 1..6; pseudo-breaks inherit it
	Title     string      `json:"title"`
	Start     int         `json:"start"` // byte offset into the source
	End       int         `json:"end"`
	Content   string      `json:"content"` // raw source [Start, End), trailing newlines included
	WordCount int         `json:"word_count"`
	Managed   ManagedKind `json:"managed,omitempty"`
	ImageSrc  string      `json:"image_src,omitempty"`
	ImageAlt  string      `json:"image_alt,omitempty"`
}

// IsPseudo reports whether the fragment is a pseudo-break section.
func (f Fragment) IsPseudo() bool { return f.Kind == KindPseudoBreak }

// Node is the durable record the store holds for one fragment's lineage.
// The parse-derived fields are replicated at last sync; Status, Tags and
// WordGoal are user metadata with no representation in the text and are
// never written by the sync path.
type Node struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Level     int         `json:"level,omitempty"`
	IsPseudo  bool        `json:"is_pseudo,omitempty"`
	Kind      Kind        `json:"kind"`
	Content   string      `json:"content"`
	WordCount int         `json:"word_count"`
	Start     int         `json:"start"`
	SortOrder float64     `json:"sort_order"`
	Managed   ManagedKind `json:"managed,omitempty"`

	Status    string    `json:"status,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	WordGoal  int       `json:"word_goal,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
