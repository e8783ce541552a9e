package domain

import (
	"fmt"
	"slices"
	"strconv"
	"sync"

	"go.trai.ch/zerr"
)

// Well-known variable names.
const (
	// VarBaseDir holds the absolute base directory of the build.
	VarBaseDir = "basedir"
	// VarBuildFile holds the path of the loaded buildfile.
	VarBuildFile = "buildfile"
	// VarNoop enables dry-run mode when truthy.
	VarNoop = "noop"
)

// maxIndirection bounds Variable-to-Variable resolution so a self-referencing
// variable cannot loop forever.
const maxIndirection = 32

// VariableStore is a thread-safe named-value cache. Every operation takes the
// single lock; sequences of operations are not transactional.
type VariableStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewVariableStore creates an empty store.
func NewVariableStore() *VariableStore {
	return &VariableStore{values: make(map[string]any)}
}

// Get returns the raw stored value.
func (s *VariableStore) Get(name string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	if !ok {
		return nil, Detail(ErrNoSuchVariable, "variable", name)
	}
	return v, nil
}

// Set inserts or replaces a value.
func (s *VariableStore) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Delete removes a variable. Deleting a missing variable is a no-op.
func (s *VariableStore) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// Has reports whether name is set.
func (s *VariableStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[name]
	return ok
}

// Names returns the sorted variable names.
func (s *VariableStore) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	s.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Var returns a deferred reference to name. The reference is resolved on every read.
func (s *VariableStore) Var(name string) Variable {
	return Variable{name: name, store: s}
}

// Resolve returns the value of name, following Variable indirections.
func (s *VariableStore) Resolve(name string) (any, error) {
	return s.Var(name).Value()
}

// String returns the text form of the resolved value of name.
func (s *VariableStore) String(name string) (string, error) {
	v, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	return ToText(v), nil
}

// Bool interprets the resolved value of name as a flag. Missing variables are false.
func (s *VariableStore) Bool(name string) bool {
	v, err := s.Resolve(name)
	if err != nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case nil:
		return false
	default:
		parsed, perr := strconv.ParseBool(ToText(b))
		return perr == nil && parsed
	}
}

// Variable is a named reference into a VariableStore. Two variables are the same
// variable when their names match; converting one to text yields the stored value.
type Variable struct {
	name  string
	store *VariableStore
}

// Name returns the variable name.
func (v Variable) Name() string {
	return v.name
}

// Equal compares variables by name.
func (v Variable) Equal(other Variable) bool {
	return v.name == other.name
}

// Value reads the stored value, resolving nested variables.
func (v Variable) Value() (any, error) {
	if v.store == nil {
		return nil, Detail(ErrNoSuchVariable, "variable", v.name)
	}
	current := v
	for range maxIndirection {
		value, err := current.store.Get(current.name)
		if err != nil {
			return nil, err
		}
		next, ok := value.(Variable)
		if !ok {
			return value, nil
		}
		if next.store == nil {
			next.store = current.store
		}
		current = next
	}
	return nil, zerr.With(zerr.Wrap(ErrConfiguration, "variable indirection too deep"), "variable", v.name)
}

// String returns the stored value as text, or "${name}" while unset.
func (v Variable) String() string {
	value, err := v.Value()
	if err != nil {
		return "${" + v.name + "}"
	}
	return ToText(value)
}

// ToText converts a variable value to its text form.
func ToText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
