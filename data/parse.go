package data

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/drpcorg/ptree/schema"
)

// Grammar-directed parser for the config body format:
//
//	scalar      name value;
//	struct      name { ... }
//	array       one element per repeated statement
//	table       one { ... } group per entry
//
// A collection parsed standalone (the payload of an add) drops the member
// name: scalars separated by semicolons, entries as bare { ... } groups.

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokWord
	tokOpen
	tokClose
	tokSemi
)

type lexer struct {
	src string
	pos int
}

func (l *lexer) next() (string, tokKind, error) {
	for l.pos < len(l.src) && unicode.IsSpace(rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return "", tokEOF, nil
	}
	switch c := l.src[l.pos]; c {
	case '{':
		l.pos++
		return "{", tokOpen, nil
	case '}':
		l.pos++
		return "}", tokClose, nil
	case ';':
		l.pos++
		return ";", tokSemi, nil
	case '"':
		end := l.pos + 1
		for end < len(l.src) {
			if l.src[end] == '\\' {
				end += 2
				continue
			}
			if l.src[end] == '"' {
				break
			}
			end++
		}
		if end >= len(l.src) {
			return "", tokEOF, fmt.Errorf("%w: unterminated string", ErrTypeMismatch)
		}
		word, err := strconv.Unquote(l.src[l.pos : end+1])
		if err != nil {
			return "", tokEOF, fmt.Errorf("%w: %s", ErrTypeMismatch, err)
		}
		l.pos = end + 1
		return word, tokWord, nil
	}
	start := l.pos
	for l.pos < len(l.src) && !unicode.IsSpace(rune(l.src[l.pos])) &&
		!strings.ContainsRune(`{};"`, rune(l.src[l.pos])) {
		l.pos++
	}
	return l.src[start:l.pos], tokWord, nil
}

func (l *lexer) peek() (string, tokKind, error) {
	save := l.pos
	tok, kind, err := l.next()
	l.pos = save
	return tok, kind, err
}

// Parse builds a value for node n from its standalone text form.
func Parse(n *schema.Node, text string) (Value, error) {
	lex := &lexer{src: text}
	v, err := parseTop(n, lex)
	if err != nil {
		return nil, err
	}
	if _, kind, err := lex.next(); err != nil {
		return nil, err
	} else if kind != tokEOF {
		return nil, fmt.Errorf("%w: trailing input", ErrTypeMismatch)
	}
	return v, nil
}

func parseTop(n *schema.Node, lex *lexer) (Value, error) {
	switch n.Kind {
	case schema.Scalar:
		tok, kind, err := lex.next()
		if err != nil {
			return nil, err
		}
		if kind != tokWord {
			return nil, fmt.Errorf("%w: expected scalar literal", ErrTypeMismatch)
		}
		s, err := ParseScalar(n.Type, tok)
		if err != nil {
			return nil, err
		}
		// tolerate the statement form "value;"
		if _, kind, _ := lex.peek(); kind == tokSemi {
			lex.next()
		}
		return s, nil
	case schema.Struct:
		return parseStructBody(n, lex, false)
	case schema.Array:
		return parseArrayElems(n, lex)
	case schema.Table:
		return parseTableEntries(n, lex)
	}
	return nil, ErrTypeMismatch
}

// parseStructBody consumes statements until EOF, or until the matching
// close brace when braced is set.
func parseStructBody(n *schema.Node, lex *lexer, braced bool) (*Struct, error) {
	s := NewStruct()
	for _, f := range n.Fields {
		switch f.Kind {
		case schema.Array:
			a, err := NewArray(f)
			if err != nil {
				return nil, err
			}
			s.Set(f.Name, a)
		case schema.Table:
			t, err := NewTable(f)
			if err != nil {
				return nil, err
			}
			s.Set(f.Name, t)
		}
	}
	for {
		tok, kind, err := lex.next()
		if err != nil {
			return nil, err
		}
		switch kind {
		case tokEOF:
			if braced {
				return nil, fmt.Errorf("%w: missing }", ErrTypeMismatch)
			}
			return s, nil
		case tokClose:
			if !braced {
				return nil, fmt.Errorf("%w: unexpected }", ErrTypeMismatch)
			}
			return s, nil
		case tokSemi:
			continue
		case tokWord:
			f := n.Field(tok)
			if f == nil {
				return nil, fmt.Errorf("%w: unknown field %q", ErrTypeMismatch, tok)
			}
			if err := parseStatement(f, lex, s); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unexpected token %q", ErrTypeMismatch, tok)
		}
	}
}

// parseStatement handles one "name ..." statement inside a struct body.
func parseStatement(f *schema.Node, lex *lexer, into *Struct) error {
	switch f.Kind {
	case schema.Scalar:
		tok, kind, err := lex.next()
		if err != nil {
			return err
		}
		if kind != tokWord {
			return fmt.Errorf("%w: expected value for %q", ErrTypeMismatch, f.Name)
		}
		s, err := ParseScalar(f.Type, tok)
		if err != nil {
			return err
		}
		into.Set(f.Name, s)
		return expectSemi(lex)
	case schema.Struct:
		if err := expectOpen(lex, f.Name); err != nil {
			return err
		}
		v, err := parseStructBody(f, lex, true)
		if err != nil {
			return err
		}
		into.Set(f.Name, v)
		return nil
	case schema.Array:
		elem, err := parseArrayElem(f, lex)
		if err != nil {
			return err
		}
		cur := into.Get(f.Name)
		fresh, err := ArrayAppend(cur, []Value{elem})
		if err != nil {
			return err
		}
		into.Set(f.Name, fresh)
		return nil
	case schema.Table:
		if err := expectOpen(lex, f.Name); err != nil {
			return err
		}
		entry, err := parseStructBody(f.Entry, lex, true)
		if err != nil {
			return err
		}
		return TableInsert(f, into.Get(f.Name), entry)
	}
	return ErrTypeMismatch
}

func parseArrayElem(f *schema.Node, lex *lexer) (Value, error) {
	if f.Elem.Kind == schema.Scalar {
		tok, kind, err := lex.next()
		if err != nil {
			return nil, err
		}
		if kind != tokWord {
			return nil, fmt.Errorf("%w: expected element for %q", ErrTypeMismatch, f.Name)
		}
		s, err := ParseScalar(f.Elem.Type, tok)
		if err != nil {
			return nil, err
		}
		return s, expectSemi(lex)
	}
	if err := expectOpen(lex, f.Name); err != nil {
		return nil, err
	}
	return parseStructBody(f.Elem, lex, true)
}

// parseArrayElems parses the standalone collection form.
func parseArrayElems(n *schema.Node, lex *lexer) (Value, error) {
	arr, err := NewArray(n)
	if err != nil {
		return nil, err
	}
	var elems []Value
	for {
		tok, kind, err := lex.peek()
		if err != nil {
			return nil, err
		}
		if kind == tokEOF {
			break
		}
		if kind == tokSemi {
			lex.next()
			continue
		}
		if n.Elem.Kind == schema.Scalar {
			if kind != tokWord {
				return nil, fmt.Errorf("%w: unexpected token %q", ErrTypeMismatch, tok)
			}
			lex.next()
			s, err := ParseScalar(n.Elem.Type, tok)
			if err != nil {
				return nil, err
			}
			elems = append(elems, s)
		} else {
			if kind != tokOpen {
				return nil, fmt.Errorf("%w: expected { for array element", ErrTypeMismatch)
			}
			lex.next()
			e, err := parseStructBody(n.Elem, lex, true)
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
	}
	return ArrayAppend(arr, elems)
}

func parseTableEntries(n *schema.Node, lex *lexer) (Value, error) {
	tbl, err := NewTable(n)
	if err != nil {
		return nil, err
	}
	for {
		tok, kind, err := lex.next()
		if err != nil {
			return nil, err
		}
		if kind == tokEOF {
			return tbl, nil
		}
		if kind == tokSemi {
			continue
		}
		if kind != tokOpen {
			return nil, fmt.Errorf("%w: expected { for table entry, got %q", ErrTypeMismatch, tok)
		}
		entry, err := parseStructBody(n.Entry, lex, true)
		if err != nil {
			return nil, err
		}
		if err := TableInsert(n, tbl, entry); err != nil {
			return nil, err
		}
	}
}

// ParseEntries parses the payload of an add: standalone collection form.
func ParseEntries(n *schema.Node, text string) (Value, error) {
	if n.Kind != schema.Array && n.Kind != schema.Table {
		return nil, ErrTypeMismatch
	}
	return Parse(n, text)
}

func expectSemi(lex *lexer) error {
	_, kind, err := lex.next()
	if err != nil {
		return err
	}
	if kind != tokSemi {
		return fmt.Errorf("%w: expected ;", ErrTypeMismatch)
	}
	return nil
}

func expectOpen(lex *lexer, name string) error {
	_, kind, err := lex.next()
	if err != nil {
		return err
	}
	if kind != tokOpen {
		return fmt.Errorf("%w: expected { after %q", ErrTypeMismatch, name)
	}
	return nil
}

// ParseScalar parses one literal under a scalar type.
func ParseScalar(t schema.ScalarType, tok string) (*Scalar, error) {
	s := &Scalar{Type: t}
	var err error
	switch t {
	case schema.String:
		s.Str = tok
	case schema.Int64:
		s.Int, err = strconv.ParseInt(tok, 10, 64)
	case schema.Uint64:
		s.Uint, err = strconv.ParseUint(tok, 10, 64)
	case schema.Float64:
		s.Flo, err = strconv.ParseFloat(tok, 64)
	case schema.Bool:
		s.Boo, err = strconv.ParseBool(tok)
	default:
		err = ErrTypeMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("%w: bad literal %q", ErrTypeMismatch, tok)
	}
	return s, nil
}
