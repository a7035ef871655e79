package data

import (
	"strconv"
	"strings"

	"github.com/drpcorg/ptree/schema"
)

// Print renders a value back to the text form Parse accepts. Output is
// deterministic: struct fields in grammar order, table entries in
// TableIterate order (sorted by key, except generic tables, which keep
// insertion order).
func Print(n *schema.Node, v Value) (string, error) {
	var b strings.Builder
	var err error
	switch n.Kind {
	case schema.Scalar:
		s, ok := v.(*Scalar)
		if !ok {
			return "", ErrTypeMismatch
		}
		b.WriteString(FormatScalar(s))
		b.WriteByte('\n')
	case schema.Struct:
		s, ok := v.(*Struct)
		if !ok {
			return "", ErrTypeMismatch
		}
		err = printStructBody(&b, n, s, 0)
	case schema.Array:
		err = printArrayElems(&b, n, v)
	case schema.Table:
		err = printTableEntries(&b, n, v)
	default:
		err = ErrTypeMismatch
	}
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func indent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

func printStructBody(b *strings.Builder, n *schema.Node, s *Struct, depth int) error {
	for _, f := range n.Fields {
		v := s.Get(f.Name)
		if v == nil {
			continue
		}
		if err := printStatement(b, f, v, depth); err != nil {
			return err
		}
	}
	return nil
}

func printStatement(b *strings.Builder, f *schema.Node, v Value, depth int) error {
	switch f.Kind {
	case schema.Scalar:
		s, ok := v.(*Scalar)
		if !ok {
			return ErrTypeMismatch
		}
		indent(b, depth)
		b.WriteString(f.Name)
		b.WriteByte(' ')
		b.WriteString(FormatScalar(s))
		b.WriteString(";\n")
	case schema.Struct:
		s, ok := v.(*Struct)
		if !ok {
			return ErrTypeMismatch
		}
		indent(b, depth)
		b.WriteString(f.Name)
		b.WriteString(" {\n")
		if err := printStructBody(b, f, s, depth+1); err != nil {
			return err
		}
		indent(b, depth)
		b.WriteString("}\n")
	case schema.Array:
		for i := 0; i < ArrayLen(v); i++ {
			elem, err := ArrayAt(v, i)
			if err != nil {
				return err
			}
			if f.Elem.Kind == schema.Scalar {
				indent(b, depth)
				b.WriteString(f.Name)
				b.WriteByte(' ')
				b.WriteString(FormatScalar(elem.(*Scalar)))
				b.WriteString(";\n")
			} else {
				indent(b, depth)
				b.WriteString(f.Name)
				b.WriteString(" {\n")
				if err := printStructBody(b, f.Elem, elem.(*Struct), depth+1); err != nil {
					return err
				}
				indent(b, depth)
				b.WriteString("}\n")
			}
		}
	case schema.Table:
		var ierr error
		TableIterate(f, v, func(entry *Struct) bool {
			indent(b, depth)
			b.WriteString(f.Name)
			b.WriteString(" {\n")
			if err := printStructBody(b, f.Entry, entry, depth+1); err != nil {
				ierr = err
				return false
			}
			indent(b, depth)
			b.WriteString("}\n")
			return true
		})
		return ierr
	}
	return nil
}

func printArrayElems(b *strings.Builder, n *schema.Node, v Value) error {
	for i := 0; i < ArrayLen(v); i++ {
		elem, err := ArrayAt(v, i)
		if err != nil {
			return err
		}
		if n.Elem.Kind == schema.Scalar {
			b.WriteString(FormatScalar(elem.(*Scalar)))
			b.WriteString(";\n")
		} else {
			b.WriteString("{\n")
			if err := printStructBody(b, n.Elem, elem.(*Struct), 1); err != nil {
				return err
			}
			b.WriteString("}\n")
		}
	}
	return nil
}

func printTableEntries(b *strings.Builder, n *schema.Node, v Value) error {
	var ierr error
	TableIterate(n, v, func(entry *Struct) bool {
		b.WriteString("{\n")
		if err := printStructBody(b, n.Entry, entry, 1); err != nil {
			ierr = err
			return false
		}
		b.WriteString("}\n")
		return true
	})
	return ierr
}

// FormatScalar renders one literal; strings that would not survive the
// lexer get quoted.
func FormatScalar(s *Scalar) string {
	switch s.Type {
	case schema.String:
		if s.Str == "" || strings.ContainsAny(s.Str, " \t\n{};\"") {
			return strconv.Quote(s.Str)
		}
		return s.Str
	case schema.Int64:
		return strconv.FormatInt(s.Int, 10)
	case schema.Uint64:
		return strconv.FormatUint(s.Uint, 10)
	case schema.Float64:
		return strconv.FormatFloat(s.Flo, 'g', -1, 64)
	case schema.Bool:
		return strconv.FormatBool(s.Boo)
	}
	return ""
}
