package domain

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// ParamType is the declared type of a task parameter.
type ParamType string

const (
	// TypeAny accepts any value unchanged.
	TypeAny ParamType = ""
	// TypeString coerces scalars to text.
	TypeString ParamType = "string"
	// TypeInt accepts integers and integral text.
	TypeInt ParamType = "int"
	// TypeBool accepts booleans and boolean text.
	TypeBool ParamType = "bool"
	// TypeList accepts lists; a scalar becomes a one-element list.
	TypeList ParamType = "list"
)

// Param declares one task parameter.
type Param struct {
	Name     string
	Type     ParamType
	Default  any
	Required bool
	// Variadic collects the remaining positional arguments. Only the last parameter may be variadic.
	Variadic bool
}

// Schema is the ordered parameter list of a task kind.
type Schema struct {
	params []Param
}

// NewSchema creates a schema. It panics on a malformed declaration, which is a
// programming error in the task kind.
func NewSchema(params ...Param) *Schema {
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		if p.Name == "" {
			panic("schema parameter without a name")
		}
		if seen[p.Name] {
			panic("duplicate schema parameter " + p.Name)
		}
		if p.Variadic && i != len(params)-1 {
			panic("variadic schema parameter " + p.Name + " is not last")
		}
		seen[p.Name] = true
	}
	return &Schema{params: slices.Clone(params)}
}

// Params returns the declared parameters.
func (s *Schema) Params() []Param {
	if s == nil {
		return nil
	}
	return slices.Clone(s.params)
}

// Bind validates positional and named arguments. A nil schema keeps them raw.
func (s *Schema) Bind(positional []any, named map[string]any) (Args, error) {
	if s == nil {
		return Args{positional: slices.Clone(positional), named: maps.Clone(named)}, nil
	}

	bound := make(map[string]any, len(s.params))
	i := 0
	for _, p := range s.params {
		if i >= len(positional) {
			break
		}
		if p.Variadic {
			bound[p.Name] = slices.Clone(positional[i:])
			i = len(positional)
			break
		}
		bound[p.Name] = positional[i]
		i++
	}
	if i < len(positional) {
		return Args{}, Detail(ErrInvalidArguments,
			"reason", fmt.Sprintf("takes %d positional arguments but %d were given", len(s.params), len(positional)))
	}

	for _, name := range slices.Sorted(maps.Keys(named)) {
		p, ok := s.lookup(name)
		if !ok {
			return Args{}, Detail(ErrInvalidArguments, "reason", "unexpected keyword argument", "param", name)
		}
		if _, dup := bound[name]; dup {
			return Args{}, Detail(ErrInvalidArguments, "reason", "multiple values for argument", "param", name)
		}
		value := named[name]
		if p.Variadic {
			value = asList(value)
		}
		bound[name] = value
	}

	for _, p := range s.params {
		value, ok := bound[p.Name]
		if !ok {
			if p.Required {
				return Args{}, Detail(ErrInvalidArguments, "reason", "missing required argument", "param", p.Name)
			}
			if p.Default == nil {
				continue
			}
			value = p.Default
		}
		coerced, err := coerce(p, value)
		if err != nil {
			return Args{}, err
		}
		bound[p.Name] = coerced
	}

	return Args{named: bound, schema: s}, nil
}

func (s *Schema) lookup(name string) (Param, bool) {
	for _, p := range s.params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

func coerce(p Param, value any) (any, error) {
	if _, deferred := value.(Variable); deferred {
		return value, nil
	}
	fail := func() error {
		return Detail(ErrInvalidArguments, "reason", "wrong type", "param", p.Name, "want", string(p.Type), "got", fmt.Sprintf("%T", value))
	}
	switch p.Type {
	case TypeString:
		switch v := value.(type) {
		case []any, map[string]any:
			return nil, fail()
		default:
			return ToText(v), nil
		}
	case TypeInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fail()
			}
			return int(v), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fail()
			}
			return n, nil
		default:
			return nil, fail()
		}
	case TypeBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, fail()
			}
			return b, nil
		default:
			return nil, fail()
		}
	case TypeList:
		return asList(value), nil
	default:
		return value, nil
	}
}

func asList(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// Args is a bound argument bundle. Values that are Variables are resolved on read.
type Args struct {
	positional []any
	named      map[string]any
	schema     *Schema
}

// NewArgs builds a raw (unschematized) argument bundle.
func NewArgs(positional []any, named map[string]any) Args {
	return Args{positional: positional, named: named}
}

// Bound reports whether the bundle was validated against a schema.
func (a Args) Bound() bool {
	return a.schema != nil
}

// Positional returns the raw positional arguments of an unbound bundle.
func (a Args) Positional() []any {
	return slices.Clone(a.positional)
}

// Has reports whether name carries a value.
func (a Args) Has(name string) bool {
	_, ok := a.named[name]
	return ok
}

// Value returns the resolved value of name.
func (a Args) Value(name string) (any, error) {
	v, ok := a.named[name]
	if !ok {
		return nil, nil
	}
	return resolve(v)
}

// String returns name as text; a missing argument is "".
func (a Args) String(name string) (string, error) {
	v, err := a.Value(name)
	if err != nil {
		return "", err
	}
	return ToText(v), nil
}

// Int returns name as an int; a missing argument is 0.
func (a Args) Int(name string) (int, error) {
	v, err := a.Value(name)
	if err != nil || v == nil {
		return 0, err
	}
	n, err := coerce(Param{Name: name, Type: TypeInt}, v)
	if err != nil {
		return 0, err
	}
	return n.(int), nil //nolint:forcetypeassert // coerce returns int for TypeInt
}

// Bool returns name as a bool; a missing argument is false.
func (a Args) Bool(name string) (bool, error) {
	v, err := a.Value(name)
	if err != nil || v == nil {
		return false, err
	}
	b, err := coerce(Param{Name: name, Type: TypeBool}, v)
	if err != nil {
		return false, err
	}
	return b.(bool), nil //nolint:forcetypeassert // coerce returns bool for TypeBool
}

// Strings returns name as a list of text values, resolving every element.
func (a Args) Strings(name string) ([]string, error) {
	v, err := a.Value(name)
	if err != nil {
		return nil, err
	}
	items := asList(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		resolved, err := resolve(item)
		if err != nil {
			return nil, err
		}
		out = append(out, ToText(resolved))
	}
	return out, nil
}

// Format renders the bundle for dry-run logging.
func (a Args) Format() string {
	parts := make([]string, 0, len(a.positional)+len(a.named))
	for _, v := range a.positional {
		parts = append(parts, fmt.Sprintf("%v", display(v)))
	}
	if a.schema != nil {
		for _, p := range a.schema.params {
			if v, ok := a.named[p.Name]; ok {
				parts = append(parts, fmt.Sprintf("%s=%v", p.Name, display(v)))
			}
		}
	} else {
		for _, k := range slices.Sorted(maps.Keys(a.named)) {
			parts = append(parts, fmt.Sprintf("%s=%v", k, display(a.named[k])))
		}
	}
	return strings.Join(parts, ", ")
}

func display(v any) any {
	if variable, ok := v.(Variable); ok {
		return variable.String()
	}
	return v
}

func resolve(v any) (any, error) {
	variable, ok := v.(Variable)
	if !ok {
		return v, nil
	}
	value, err := variable.Value()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve argument")
	}
	return value, nil
}
