package message

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/segment"
)

// Return codes the dialog flow depends on
const (
	CodeStrongAuthPending   = "0030"
	CodeDecoupledConfirmed  = "0900"
	CodeTouchdown           = "3040"
	CodeAllowedTanMethods   = "3920"
	CodeDecoupledStarted    = "3955"
	CodeDecoupledPending    = "3956"
	errorThreshold          = 9000
	maxUnwrapDepth          = 4
	encryptedDataSegment    = "HNVSD"
	messageHeaderSegment    = "HNHBK"
	globalReturnCodeSegment = "HIRMG"
	returnCodeSegment       = "HIRMS"
)

// Code is a single bank return code
type Code struct {
	Code string

	// Reference is an element reference of the related request segment
	Reference string

	Text   string
	Params []string

	// Segment is a number of the request segment the code relates to. Zero for global codes
	Segment int
}

// IsError reports a fatal code
func (c Code) IsError() bool {
	n, err := strconv.Atoi(c.Code)
	return err == nil && n >= errorThreshold
}

// ProtocolError is returned when the bank responds with a code >= 9000
type ProtocolError struct {
	Code      string
	Message   string
	Reference string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("FinTS error %v: %v", e.Code, e.Message)
}

// Response is a parsed bank response
type Response struct {
	segments []segment.Segment
}

func unwrap(segments []segment.Segment, depth int) ([]segment.Segment, error) {
	result := make([]segment.Segment, 0, len(segments))
	for _, seg := range segments {
		if seg.Name != encryptedDataSegment {
			result = append(result, seg)
			continue
		}
		if depth >= maxUnwrapDepth {
			return nil, errors.New("Encrypted data nested too deep")
		}
		inner, err := segment.Parse([]byte(seg.Item(0, 0)))
		if err != nil {
			return nil, errors.Wrap(err, "Failed to parse encrypted data")
		}
		inner, err = unwrap(inner, depth+1)
		if err != nil {
			return nil, err
		}
		result = append(result, inner...)
	}
	return result, nil
}

// ParseResponse parses raw response and unwraps encrypted payloads
func ParseResponse(raw []byte) (*Response, error) {
	segments, err := segment.Parse(raw)
	if err != nil {
		return nil, err
	}
	segments, err = unwrap(segments, 0)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, errors.New("Empty response")
	}
	return &Response{segments: segments}, nil
}

// Segments returns all segments of the response
func (r *Response) Segments() []segment.Segment {
	return r.segments
}

// Find returns first segment with a given name
func (r *Response) Find(name string) (segment.Segment, bool) {
	for _, seg := range r.segments {
		if seg.Name == name {
			return seg, true
		}
	}
	return segment.Segment{}, false
}

// FindAll returns all segments with a given name
func (r *Response) FindAll(name string) []segment.Segment {
	var result []segment.Segment
	for _, seg := range r.segments {
		if seg.Name == name {
			result = append(result, seg)
		}
	}
	return result
}

// DialogID returns a dialog id from the message header
func (r *Response) DialogID() string {
	if hdr, ok := r.Find(messageHeaderSegment); ok {
		return hdr.Item(2, 0)
	}
	return ""
}

// Codes returns global and segment return codes in order
func (r *Response) Codes() []Code {
	var codes []Code
	for _, seg := range r.segments {
		if seg.Name != globalReturnCodeSegment && seg.Name != returnCodeSegment {
			continue
		}
		for _, el := range seg.Elements {
			if len(el) == 0 || el[0] == "" {
				continue
			}
			code := Code{Code: el[0], Segment: seg.Reference}
			if len(el) > 1 {
				code.Reference = el[1]
			}
			if len(el) > 2 {
				code.Text = el[2]
			}
			if len(el) > 3 {
				code.Params = el[3:]
			}
			codes = append(codes, code)
		}
	}
	return codes
}

// Code returns first code with a given value
func (r *Response) Code(code string) (Code, bool) {
	for _, c := range r.Codes() {
		if c.Code == code {
			return c, true
		}
	}
	return Code{}, false
}

// HasCode reports whether the response has a given code
func (r *Response) HasCode(code string) bool {
	_, ok := r.Code(code)
	return ok
}

// Error returns the first fatal code as *ProtocolError or nil
func (r *Response) Error() error {
	for _, c := range r.Codes() {
		if c.IsError() {
			return &ProtocolError{Code: c.Code, Message: c.Text, Reference: c.Reference}
		}
	}
	return nil
}

// Touchdown returns a continuation token if more data is available
func (r *Response) Touchdown() (string, bool) {
	c, ok := r.Code(CodeTouchdown)
	if !ok || len(c.Params) == 0 || c.Params[0] == "" {
		return "", false
	}
	return c.Params[0], true
}
