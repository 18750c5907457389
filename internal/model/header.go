package model

import (
	"net/http"
	"slices"
	"sort"
)

// HeaderField is a single header line.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered header multimap. Unlike http.Header it keeps the
// relative order of every field, so repeated fields such as Set-Cookie
// survive a round trip in the order they were received.
//
// Names are stored in canonical form.
type Header []HeaderField

// HeaderFromHTTP converts an http.Header. Names are emitted in sorted order
// since map iteration order is undefined; values keep their order.
func HeaderFromHTTP(src http.Header) Header {
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	h := make(Header, 0, len(src))
	for _, name := range names {
		for _, v := range src[name] {
			h.Add(name, v)
		}
	}
	return h
}

// HTTP converts the multimap into an http.Header.
func (h Header) HTTP() http.Header {
	dst := make(http.Header, len(h))
	for _, f := range h {
		dst[f.Name] = append(dst[f.Name], f.Value)
	}
	return dst
}

// Add appends a field.
func (h *Header) Add(name, value string) {
	*h = append(*h, HeaderField{Name: http.CanonicalHeaderKey(name), Value: value})
}

// Set replaces every field named name with a single field holding value.
// The new field takes the position of the first removed one, or is appended
// when name was absent.
func (h *Header) Set(name, value string) {
	name = http.CanonicalHeaderKey(name)
	out := (*h)[:0]
	placed := false
	for _, f := range *h {
		if f.Name != name {
			out = append(out, f)
			continue
		}
		if !placed {
			out = append(out, HeaderField{Name: name, Value: value})
			placed = true
		}
	}
	if !placed {
		out = append(out, HeaderField{Name: name, Value: value})
	}
	*h = out
}

// Get returns the first value for name, or "".
func (h Header) Get(name string) string {
	name = http.CanonicalHeaderKey(name)
	for _, f := range h {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name in order.
func (h Header) Values(name string) []string {
	name = http.CanonicalHeaderKey(name)
	var vals []string
	for _, f := range h {
		if f.Name == name {
			vals = append(vals, f.Value)
		}
	}
	return vals
}

// Has reports whether at least one field is named name.
func (h Header) Has(name string) bool {
	name = http.CanonicalHeaderKey(name)
	return slices.ContainsFunc(h, func(f HeaderField) bool { return f.Name == name })
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	name = http.CanonicalHeaderKey(name)
	*h = slices.DeleteFunc(*h, func(f HeaderField) bool { return f.Name == name })
}

// Len returns the number of fields.
func (h Header) Len() int { return len(h) }

// Clone returns an independent copy.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	return slices.Clone(h)
}
