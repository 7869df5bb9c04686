package dictionary

import "fmt"

// Set holds dictionaries in declaration order and resolves them by name.
// Groups receive the Set built so far instead of a global registry.
type Set struct {
	dicts  []PhraseDictionary
	byName map[string]PhraseDictionary
}

// NewSet returns a set holding dicts in order.
func NewSet(dicts ...PhraseDictionary) (*Set, error) {
	s := &Set{byName: make(map[string]PhraseDictionary, len(dicts))}
	for _, d := range dicts {
		if err := s.Add(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends d. Names must be unique.
func (s *Set) Add(d PhraseDictionary) error {
	if _, dup := s.byName[d.Name()]; dup {
		return fmt.Errorf("%w: duplicate dictionary name %q", ErrConfiguration, d.Name())
	}
	s.dicts = append(s.dicts, d)
	s.byName[d.Name()] = d
	return nil
}

// Get resolves name by exact match.
func (s *Set) Get(name string) (PhraseDictionary, bool) {
	if s == nil {
		return nil, false
	}
	d, ok := s.byName[name]
	return d, ok
}

// All returns the dictionaries in declaration order.
func (s *Set) All() []PhraseDictionary {
	if s == nil {
		return nil
	}
	return s.dicts
}

// Len returns the number of dictionaries.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.dicts)
}
