// Package segment implements the FinTS segment syntax: building request
// segments and tokenizing raw responses back into segments.
package segment

import (
	"strconv"
	"strings"
)

// Segment is a parsed FinTS segment.
// Elements do not include the header element
type Segment struct {
	Name    string
	Number  int
	Version int

	// Reference is a number of the request segment this one responds to. Zero if absent
	Reference int

	// Elements hold text items decoded to UTF-8. Binary items are kept raw
	Elements [][]string
}

// Element returns items of the element at given index or nil if absent
func (s Segment) Element(i int) []string {
	if i < 0 || i >= len(s.Elements) {
		return nil
	}
	return s.Elements[i]
}

// Item returns a single item or empty string if absent
func (s Segment) Item(i, j int) string {
	el := s.Element(i)
	if j < 0 || j >= len(el) {
		return ""
	}
	return el[j]
}

// Header returns a textual representation of the segment header
func (s Segment) Header() string {
	header := s.Name + ":" + strconv.Itoa(s.Number) + ":" + strconv.Itoa(s.Version)
	if s.Reference > 0 {
		header += ":" + strconv.Itoa(s.Reference)
	}
	return header
}

// JoinElement returns element items joined with ':'
func (s Segment) JoinElement(i int) string {
	return strings.Join(s.Element(i), ":")
}
