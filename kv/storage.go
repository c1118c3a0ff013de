package kv

import (
	"iter"

	json "github.com/json-iterator/go"
)

type entry struct {
	Key    string
	Values []string
}

// Storage keeps form fields in the order their names were first submitted. A name
// submitted once holds a scalar; the second submission promotes it to an ordered
// list and every further one appends to it. Names are case-sensitive, as browsers
// never normalize them.
//
// Lookups are linear, which beats a map on the handful of fields a typical form
// carries.
type Storage struct {
	entries []entry
}

func New() *Storage {
	return new(Storage)
}

// NewPrealloc returns an instance of Storage with pre-allocated underlying storage.
func NewPrealloc(n int) *Storage {
	return &Storage{
		entries: make([]entry, 0, n),
	}
}

// Add appends a value to the key.
func (s *Storage) Add(key, value string) *Storage {
	if i := s.index(key); i != -1 {
		s.entries[i].Values = append(s.entries[i].Values, value)
		return s
	}

	s.entries = append(s.entries, entry{
		Key:    key,
		Values: []string{value},
	})

	return s
}

// Value returns the first value, corresponding to the key. Otherwise, empty string is returned
func (s *Storage) Value(key string) string {
	return s.ValueOr(key, "")
}

// ValueOr returns either the first value corresponding to the key or custom value, defined
// via the second parameter.
func (s *Storage) ValueOr(key, or string) string {
	value, found := s.Get(key)
	if !found {
		return or
	}

	return value
}

// Get returns the first value and a bool, indicating whether the value was found.
func (s *Storage) Get(key string) (value string, found bool) {
	if i := s.index(key); i != -1 {
		return s.entries[i].Values[0], true
	}

	return "", false
}

// Values returns all values by the key in submission order. Returns nil if key doesn't
// exist. The returned slice must not be modified.
func (s *Storage) Values(key string) []string {
	if i := s.index(key); i != -1 {
		return s.entries[i].Values
	}

	return nil
}

// IsList tells whether the key was submitted more than once.
func (s *Storage) IsList(key string) bool {
	return len(s.Values(key)) > 1
}

// Has indicates, whether there's an entry of the key.
func (s *Storage) Has(key string) bool {
	return s.index(key) != -1
}

// Keys returns an iterator over unique keys in order of their first appearance.
func (s *Storage) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, e := range s.entries {
			if !yield(e.Key) {
				break
			}
		}
	}
}

// Pairs returns an iterator over every stored key-value pair.
func (s *Storage) Pairs() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, e := range s.entries {
			for _, value := range e.Values {
				if !yield(e.Key, value) {
					return
				}
			}
		}
	}
}

// Len returns a number of unique keys.
func (s *Storage) Len() int {
	return len(s.entries)
}

func (s *Storage) Empty() bool {
	return s.Len() == 0
}

// Clear all the entries. However, all the allocated space won't be freed.
func (s *Storage) Clear() *Storage {
	s.entries = s.entries[:0]
	return s
}

// MarshalJSON renders the storage as an object, where keys submitted once map to a
// string and repeated keys map to an array of strings.
func (s *Storage) MarshalJSON() ([]byte, error) {
	stream := json.ConfigDefault.BorrowStream(nil)
	defer json.ConfigDefault.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, e := range s.entries {
		if i > 0 {
			stream.WriteMore()
		}

		stream.WriteObjectField(e.Key)
		if len(e.Values) == 1 {
			stream.WriteString(e.Values[0])
			continue
		}

		stream.WriteArrayStart()
		for j, value := range e.Values {
			if j > 0 {
				stream.WriteMore()
			}

			stream.WriteString(value)
		}
		stream.WriteArrayEnd()
	}
	stream.WriteObjectEnd()

	if stream.Error != nil {
		return nil, stream.Error
	}

	return append([]byte(nil), stream.Buffer()...), nil
}

func (s *Storage) index(key string) int {
	for i, e := range s.entries {
		if e.Key == key {
			return i
		}
	}

	return -1
}
