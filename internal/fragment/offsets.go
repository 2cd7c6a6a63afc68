package fragment

import "sort"

// OffsetMap converts byte offsets into UTF-16 code-unit offsets for host
// editing surfaces that index text the JavaScript/Swift way. Built once per
// document version; lookups are binary searches over rune boundaries.
type OffsetMap struct {
	byteAt []int // byte offset of each rune boundary, plus end sentinel
	unitAt []int // UTF-16 offset of the same boundary
}

// NewOffsetMap indexes src for byte-to-UTF-16 conversion.
func NewOffsetMap(src string) *OffsetMap {
	m := &OffsetMap{}
	units := 0
	for i, r := range src {
		m.byteAt = append(m.byteAt, i)
		m.unitAt = append(m.unitAt, units)
		if r >= 0x10000 {
			units += 2 // surrogate pair
		} else {
			units++
		}
	}
	m.byteAt = append(m.byteAt, len(src))
	m.unitAt = append(m.unitAt, units)
	return m
}

// UTF16 returns the UTF-16 code-unit offset for a byte offset. Offsets that
// fall inside a rune or past the end snap to the nearest boundary at or
// before them.
func (m *OffsetMap) UTF16(byteOff int) int {
	i := sort.SearchInts(m.byteAt, byteOff)
	if i == len(m.byteAt) || m.byteAt[i] != byteOff {
		i--
	}
	if i < 0 {
		return 0
	}
	return m.unitAt[i]
}
