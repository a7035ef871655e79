package ptree

import (
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// Store keeps the last committed configuration on disk so an operator
// can inspect what a crashed leader had applied. One key per schema; not
// a history.
type Store struct {
	db *pebble.DB
}

func OpenStore(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "config store")
	}
	return &Store{db: db}, nil
}

// committed snapshot key, lit C then the schema name
func storeKey(schemaName string) []byte {
	return append([]byte{'C'}, schemaName...)
}

func (s *Store) SaveCommitted(schemaName string, printed []byte) error {
	return s.db.Set(storeKey(schemaName), printed, pebble.Sync)
}

// LastCommitted returns the stored snapshot, or "" when none exists.
func (s *Store) LastCommitted(schemaName string) (string, error) {
	val, closer, err := s.db.Get(storeKey(schemaName))
	if err == pebble.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	printed := string(val)
	if cerr := closer.Close(); cerr != nil {
		return "", cerr
	}
	return printed, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
