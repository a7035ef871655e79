// Package action defines the graph-mutation alphabet and its wire codec.
//
// A frame is one TLV record: the type byte is the verb, the body is a
// sequence of operand records ('N' app name, 'K' app kind, 'G' printed
// config, 'L' link spec). Records use a 2-byte header (lowercase type,
// 1-byte length) for bodies up to 255 bytes and a 5-byte header
// (uppercase type, little-endian u32 length) beyond that.
package action

import (
	"encoding/binary"
	"errors"
)

type Verb byte

const (
	AddApp         Verb = 'A'
	RemoveApp      Verb = 'R'
	ReconfigApp    Verb = 'U'
	ConnectLink    Verb = 'C'
	DisconnectLink Verb = 'D'
)

var (
	ErrUnknownVerb = errors.New("unknown action verb")
	ErrTruncated   = errors.New("truncated action frame")
	ErrBadOperand  = errors.New("bad action operand")
)

// Action is one atomic graph mutation. Which operands are meaningful
// depends on the verb; the rest stay empty.
type Action struct {
	Verb   Verb
	Name   string
	Kind   string
	Config string
	Link   string
}

const caseBit byte = 'a' - 'A'

func knownVerb(v Verb) bool {
	switch v {
	case AddApp, RemoveApp, ReconfigApp, ConnectLink, DisconnectLink:
		return true
	}
	return false
}

// Encode renders the action as one length-delimited frame.
func Encode(a Action) ([]byte, error) {
	if !knownVerb(a.Verb) {
		return nil, ErrUnknownVerb
	}
	var body []byte
	body = appendOperand(body, 'N', a.Name)
	body = appendOperand(body, 'K', a.Kind)
	body = appendOperand(body, 'G', a.Config)
	body = appendOperand(body, 'L', a.Link)
	frame := appendHeader(nil, byte(a.Verb), len(body))
	return append(frame, body...), nil
}

func appendOperand(into []byte, lit byte, val string) []byte {
	if val == "" {
		return into
	}
	into = appendHeader(into, lit, len(val))
	return append(into, val...)
}

func appendHeader(into []byte, lit byte, bodylen int) []byte {
	if bodylen <= 0xff {
		return append(into, lit|caseBit, byte(bodylen))
	}
	into = append(into, lit&^caseBit)
	return binary.LittleEndian.AppendUint32(into, uint32(bodylen))
}

// probeHeader reads a record header. lit is 0 for an incomplete header
// and '-' for garbage.
func probeHeader(data []byte) (lit byte, hdrlen, bodylen int) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	switch c := data[0]; {
	case c >= 'a' && c <= 'z':
		if len(data) < 2 {
			return 0, 0, 0
		}
		return c - caseBit, 2, int(data[1])
	case c >= 'A' && c <= 'Z':
		if len(data) < 5 {
			return 0, 0, 0
		}
		bl := binary.LittleEndian.Uint32(data[1:5])
		if bl > 0x7fffffff {
			return '-', 0, 0
		}
		return c, 5, int(bl)
	default:
		return '-', 0, 0
	}
}

// Decode parses one action frame from the front of data and reports how
// many bytes it consumed.
func Decode(data []byte) (Action, int, error) {
	lit, hlen, blen := probeHeader(data)
	if lit == 0 {
		return Action{}, 0, ErrTruncated
	}
	if lit == '-' {
		return Action{}, 0, ErrUnknownVerb
	}
	if !knownVerb(Verb(lit)) {
		return Action{}, 0, ErrUnknownVerb
	}
	if hlen+blen > len(data) {
		return Action{}, 0, ErrTruncated
	}
	a := Action{Verb: Verb(lit)}
	body := data[hlen : hlen+blen]
	for len(body) > 0 {
		olit, ohlen, oblen := probeHeader(body)
		if olit == 0 {
			return Action{}, 0, ErrTruncated
		}
		if olit == '-' || ohlen+oblen > len(body) {
			return Action{}, 0, ErrBadOperand
		}
		val := string(body[ohlen : ohlen+oblen])
		switch olit {
		case 'N':
			a.Name = val
		case 'K':
			a.Kind = val
		case 'G':
			a.Config = val
		case 'L':
			a.Link = val
		default:
			return Action{}, 0, ErrBadOperand
		}
		body = body[ohlen+oblen:]
	}
	if err := checkOperands(a); err != nil {
		return Action{}, 0, err
	}
	return a, hlen + blen, nil
}

func checkOperands(a Action) error {
	switch a.Verb {
	case AddApp:
		if a.Name == "" || a.Kind == "" {
			return ErrBadOperand
		}
	case RemoveApp:
		if a.Name == "" {
			return ErrBadOperand
		}
	case ReconfigApp:
		if a.Name == "" {
			return ErrBadOperand
		}
	case ConnectLink, DisconnectLink:
		if a.Link == "" {
			return ErrBadOperand
		}
	}
	return nil
}
