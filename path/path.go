// Package path parses and resolves schema paths.
//
// A path is a sequence of named segments; a segment may carry a query
// selecting into a table ([key=value]...) or an array ([N], 1-based).
package path

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/drpcorg/ptree/schema"
)

var (
	ErrBadPath         = errors.New("bad path syntax")
	ErrNotFound        = errors.New("path not found in grammar")
	ErrQueryOnScalar   = errors.New("query on a non-collection node")
	ErrMissingKeyField = errors.New("query does not match the key tuple")
)

type Segment struct {
	Name     string
	HasQuery bool
	// Query holds key=value selectors for tables.
	Query map[string]string
	// Index is the 1-based position for array queries.
	Index int
}

// Parse splits a path into segments. "/" yields no segments.
func Parse(text string) ([]Segment, error) {
	if text == "" || text[0] != '/' {
		return nil, fmt.Errorf("%w: %q", ErrBadPath, text)
	}
	if text == "/" {
		return nil, nil
	}
	var segs []Segment
	rest := text[1:]
	for len(rest) > 0 {
		var raw string
		if i := splitIndex(rest); i >= 0 {
			raw, rest = rest[:i], rest[i+1:]
		} else {
			raw, rest = rest, ""
		}
		seg, err := parseSegment(raw)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// splitIndex finds the next '/' outside brackets and quotes.
func splitIndex(s string) int {
	depth := 0
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case '[':
			if !quoted {
				depth++
			}
		case ']':
			if !quoted {
				depth--
			}
		case '/':
			if !quoted && depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseSegment(raw string) (Segment, error) {
	br := strings.IndexByte(raw, '[')
	if br < 0 {
		if raw == "" {
			return Segment{}, fmt.Errorf("%w: empty segment", ErrBadPath)
		}
		if strings.ContainsAny(raw, "]=") {
			return Segment{}, fmt.Errorf("%w: %q", ErrBadPath, raw)
		}
		return Segment{Name: raw}, nil
	}
	seg := Segment{Name: raw[:br], HasQuery: true}
	if seg.Name == "" {
		return Segment{}, fmt.Errorf("%w: empty segment", ErrBadPath)
	}
	rest := raw[br:]
	for len(rest) > 0 {
		if rest[0] != '[' {
			return Segment{}, fmt.Errorf("%w: %q", ErrBadPath, raw)
		}
		end := closeIndex(rest)
		if end < 0 {
			return Segment{}, fmt.Errorf("%w: unbalanced bracket in %q", ErrBadPath, raw)
		}
		inner := rest[1:end]
		rest = rest[end+1:]
		eq := strings.IndexByte(inner, '=')
		if eq < 0 {
			idx, err := strconv.Atoi(inner)
			if err != nil || idx < 1 {
				return Segment{}, fmt.Errorf("%w: bad index %q", ErrBadPath, inner)
			}
			seg.Index = idx
			continue
		}
		if seg.Query == nil {
			seg.Query = make(map[string]string)
		}
		val := inner[eq+1:]
		if len(val) >= 2 && val[0] == '"' {
			unq, err := strconv.Unquote(val)
			if err != nil {
				return Segment{}, fmt.Errorf("%w: %q", ErrBadPath, val)
			}
			val = unq
		}
		seg.Query[inner[:eq]] = val
	}
	return seg, nil
}

func closeIndex(s string) int {
	quoted := false
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ']':
			if !quoted {
				return i
			}
		}
	}
	return -1
}

// Format prints segments back to canonical path text: normalized names,
// query keys sorted.
func Format(segs []Segment) string {
	if len(segs) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, seg := range segs {
		b.WriteByte('/')
		b.WriteString(schema.NormalizeID(seg.Name))
		if !seg.HasQuery {
			continue
		}
		if seg.Index > 0 {
			fmt.Fprintf(&b, "[%d]", seg.Index)
			continue
		}
		keys := make([]string, 0, len(seg.Query))
		for k := range seg.Query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := seg.Query[k]
			if v == "" || strings.ContainsAny(v, ` []/="`) {
				v = strconv.Quote(v)
			}
			fmt.Fprintf(&b, "[%s=%s]", schema.NormalizeID(k), v)
		}
	}
	return b.String()
}

// Normalize reprints a path in canonical form.
func Normalize(text string) (string, error) {
	segs, err := Parse(text)
	if err != nil {
		return "", err
	}
	return Format(segs), nil
}
