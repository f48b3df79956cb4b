package segment

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
)

var logger = diag.CreateLogger()

var headerRegexp = regexp.MustCompile(`^([A-Z][A-Z0-9]{4,5}):(\d+):(\d+)(?::(\d+))?$`)

type rawItem struct {
	data   []byte
	binary bool
}

type tokenizer struct {
	raw []byte
	pos int
}

// next reads a single segment. Returns nil elements when input is exhausted
func (t *tokenizer) next() ([][]rawItem, error) {
	for t.pos < len(t.raw) && isBlank(t.raw[t.pos]) {
		t.pos++
	}
	if t.pos >= len(t.raw) {
		return nil, nil
	}

	var (
		elements [][]rawItem
		element  []rawItem
		item     rawItem
	)
	for t.pos < len(t.raw) {
		c := t.raw[t.pos]
		switch c {
		case escapeChar:
			if t.pos+1 >= len(t.raw) {
				return nil, errors.Errorf("Dangling escape at %v", t.pos)
			}
			item.data = append(item.data, t.raw[t.pos+1])
			t.pos += 2
		case binaryMarker:
			data, err := t.readBinary()
			if err != nil {
				return nil, err
			}
			item.data = append(item.data, data...)
			item.binary = true
		case itemSeparator:
			element = append(element, item)
			item = rawItem{}
			t.pos++
		case elementSeparator:
			element = append(element, item)
			elements = append(elements, element)
			element, item = nil, rawItem{}
			t.pos++
		case segmentTerminator:
			element = append(element, item)
			elements = append(elements, element)
			t.pos++
			return elements, nil
		default:
			item.data = append(item.data, c)
			t.pos++
		}
	}
	return nil, errors.New("Unterminated segment")
}

func (t *tokenizer) readBinary() ([]byte, error) {
	start := t.pos + 1
	end := start
	for end < len(t.raw) && t.raw[end] >= '0' && t.raw[end] <= '9' {
		end++
	}
	if end == start || end >= len(t.raw) || t.raw[end] != binaryMarker {
		return nil, errors.Errorf("Malformed binary item at %v", t.pos)
	}
	length, err := strconv.Atoi(string(t.raw[start:end]))
	if err != nil {
		return nil, errors.Wrapf(err, "Malformed binary length at %v", t.pos)
	}
	dataStart := end + 1
	if dataStart+length > len(t.raw) {
		return nil, errors.Errorf("Truncated binary item at %v: want %v bytes, got %v", t.pos, length, len(t.raw)-dataStart)
	}
	t.pos = dataStart + length
	return t.raw[dataStart:t.pos], nil
}

func isBlank(c byte) bool {
	return c == '\r' || c == '\n' || c == ' ' || c == '\t'
}

func parseHeader(header string) (Segment, bool) {
	match := headerRegexp.FindStringSubmatch(header)
	if match == nil {
		return Segment{}, false
	}
	seg := Segment{Name: match[1]}
	seg.Number, _ = strconv.Atoi(match[2])
	seg.Version, _ = strconv.Atoi(match[3])
	if match[4] != "" {
		seg.Reference, _ = strconv.Atoi(match[4])
	}
	return seg, true
}

// Parse splits a raw message into segments. Segments with an unrecognized
// header are logged and skipped
func Parse(raw []byte) ([]Segment, error) {
	t := tokenizer{raw: raw}
	var segments []Segment
	for {
		elements, err := t.next()
		if err != nil {
			return nil, errors.Wrap(err, "Failed to tokenize segments")
		}
		if elements == nil {
			return segments, nil
		}
		headerParts := make([]string, len(elements[0]))
		for i, item := range elements[0] {
			headerParts[i] = string(item.data)
		}
		header := strings.Join(headerParts, ":")
		seg, ok := parseHeader(header)
		if !ok {
			logger.WithData(diag.MsgData{"header": header}).Warn(context.TODO(), "Skipping segment with unexpected header")
			continue
		}
		seg.Elements = make([][]string, len(elements)-1)
		for i, el := range elements[1:] {
			items := make([]string, len(el))
			for j, item := range el {
				if item.binary {
					items[j] = string(item.data)
				} else {
					items[j] = DecodeText(item.data)
				}
			}
			seg.Elements[i] = items
		}
		segments = append(segments, seg)
	}
}
