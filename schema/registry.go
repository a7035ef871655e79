package schema

import (
	"errors"

	"github.com/puzpuzpuz/xsync/v3"
)

// The registry is the seam between the leader and whatever loads schemas
// from their source form. Loading and parsing YANG is a separate concern;
// here a schema arrives already compiled to a grammar and is served by name.

var ErrUnknownSchema = errors.New("unknown schema")

var registry = xsync.NewMapOf[string, *Schema]()

// Register makes a compiled schema loadable by name. The last registration
// for a name wins.
func Register(s *Schema) {
	registry.Store(s.Name, s)
}

// Load returns the schema registered under name.
func Load(name string) (*Schema, error) {
	s, ok := registry.Load(name)
	if !ok {
		return nil, ErrUnknownSchema
	}
	return s, nil
}
