package domain

import "unique"

// Name is an interned identifier for registered kinds and targets. Comparing two
// Names compares handles, so it is cheap to use as a map key in the latch table.
type Name struct {
	h unique.Handle[string]
}

// NewName interns s.
func NewName(s string) Name {
	return Name{h: unique.Make(s)}
}

// IsZero reports whether the name was never set.
func (n Name) IsZero() bool {
	var zero unique.Handle[string]
	return n.h == zero
}

// String returns the identifier text.
func (n Name) String() string {
	if n.IsZero() {
		return ""
	}
	return n.h.Value()
}

// MarshalText implements encoding.TextMarshaler.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so buildfile keys decode directly.
func (n *Name) UnmarshalText(text []byte) error {
	*n = NewName(string(text))
	return nil
}
