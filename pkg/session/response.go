package session

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"
)

// DefaultContentType is reported when the transport declared no media type.
const DefaultContentType = "application/octet-stream"

// Header is a single header line as the transport delivered it.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list. Lookups ignore case, names keep their original spelling.
type Headers []Header

// Get returns the first value for name, or "" if absent.
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// Values returns every value for name in order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr.Value)
		}
	}
	return out
}

// Has reports whether name is present.
func (h Headers) Has(name string) bool {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return true
		}
	}
	return false
}

// HeadersFromMap flattens a multi-valued header map such as http.Header or
// metadata.MD. Maps carry no order, so names are sorted; values keep their order.
func HeadersFromMap(m map[string][]string) Headers {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(Headers, 0, len(m))
	for _, name := range names {
		for _, v := range m[name] {
			out = append(out, Header{Name: name, Value: v})
		}
	}
	return out
}

// Response is the transport-independent result every backend produces.
// It is immutable: accessors hand out copies.
type Response struct {
	statusCode  int
	body        []byte
	headers     Headers
	contentType string
}

// NewResponse builds a Response. body and headers are copied.
func NewResponse(statusCode int, body []byte, headers Headers, contentType string) *Response {
	if contentType == "" {
		contentType = DefaultContentType
	}
	return &Response{
		statusCode:  statusCode,
		body:        slices.Clone(body),
		headers:     slices.Clone(headers),
		contentType: contentType,
	}
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.statusCode }

// Body returns a copy of the buffered payload.
func (r *Response) Body() []byte { return slices.Clone(r.body) }

// Len returns the payload size in bytes.
func (r *Response) Len() int { return len(r.body) }

// Text returns the payload as a string.
func (r *Response) Text() string { return string(r.body) }

// Headers returns a copy of the header list.
func (r *Response) Headers() Headers { return slices.Clone(r.headers) }

// Header returns the first value of the named header.
func (r *Response) Header(name string) string { return r.headers.Get(name) }

// ContentType returns the media type without parameters.
func (r *Response) ContentType() string { return r.contentType }

// JSON decodes the payload into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.body, v)
}
