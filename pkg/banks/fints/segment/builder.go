package segment

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	segmentTerminator = '\''
	elementSeparator  = '+'
	itemSeparator     = ':'
	escapeChar        = '?'
	binaryMarker      = '@'
)

var escaper = strings.NewReplacer(
	"?", "??",
	"+", "?+",
	":", "?:",
	"@", "?@",
	"'", "?'",
)

var latin1 = charmap.ISO8859_1

// Escape prefixes every syntax character with '?'
func Escape(s string) string {
	return escaper.Replace(s)
}

// EncodeText converts UTF-8 text to ISO-8859-1. Unsupported runes are replaced
func EncodeText(s string) []byte {
	encoded, err := encoding.ReplaceUnsupported(latin1.NewEncoder()).Bytes([]byte(s))
	if err != nil {
		// ReplaceUnsupported never fails on valid input
		return []byte(s)
	}
	return encoded
}

// DecodeText converts ISO-8859-1 bytes to UTF-8 text
func DecodeText(b []byte) string {
	decoded, err := latin1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}

// Item is a single encoded wire item
type Item []byte

// Text returns an escaped ISO-8859-1 item
func Text(s string) Item {
	return Item(EncodeText(Escape(s)))
}

// Binary returns an "@len@data" item. Data is not escaped
func Binary(data []byte) Item {
	item := make([]byte, 0, len(data)+8)
	item = append(item, binaryMarker)
	item = strconv.AppendInt(item, int64(len(data)), 10)
	item = append(item, binaryMarker)
	return append(item, data...)
}

// Builder builds a single request segment
type Builder struct {
	name     string
	version  int
	elements [][]Item
}

// New starts a segment with a given name and version
func New(name string, version int) *Builder {
	return &Builder{name: name, version: version}
}

// Name returns a name of the segment being built
func (b *Builder) Name() string {
	return b.name
}

// Add appends an element made of text items
func (b *Builder) Add(items ...string) *Builder {
	el := make([]Item, len(items))
	for i, item := range items {
		el[i] = Text(item)
	}
	b.elements = append(b.elements, el)
	return b
}

// AddItems appends an element made of pre-encoded items
func (b *Builder) AddItems(items ...Item) *Builder {
	b.elements = append(b.elements, items)
	return b
}

// Build renders the segment with a given segment number
func (b *Builder) Build(number int) []byte {
	var buf bytes.Buffer
	buf.WriteString(b.name)
	buf.WriteByte(itemSeparator)
	buf.WriteString(strconv.Itoa(number))
	buf.WriteByte(itemSeparator)
	buf.WriteString(strconv.Itoa(b.version))
	for _, el := range b.elements {
		buf.WriteByte(elementSeparator)
		for i, item := range el {
			if i > 0 {
				buf.WriteByte(itemSeparator)
			}
			buf.Write(item)
		}
	}
	buf.WriteByte(segmentTerminator)
	return buf.Bytes()
}
