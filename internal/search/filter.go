package search

import (
	"encoding/json"
	"fmt"
)

// Op is a filter operator in the Cortex Search filter syntax.
type Op string

const (
	OpEq       Op = "@eq"
	OpContains Op = "@contains"
	OpGte      Op = "@gte"
	OpLte      Op = "@lte"
	OpAnd      Op = "@and"
	OpOr       Op = "@or"
	OpNot      Op = "@not"
)

// Filter is a boolean predicate over result attributes. Leaf filters compare
// Field to Value; @and/@or combine Filters; @not negates Filters[0].
type Filter struct {
	Op      Op
	Field   string
	Value   any
	Filters []*Filter
}

// Eq matches records whose field equals value.
func Eq(field string, value any) *Filter {
	return &Filter{Op: OpEq, Field: field, Value: value}
}

// Contains matches records whose array field contains value.
func Contains(field string, value any) *Filter {
	return &Filter{Op: OpContains, Field: field, Value: value}
}

// Gte matches records whose field is >= value.
func Gte(field string, value any) *Filter {
	return &Filter{Op: OpGte, Field: field, Value: value}
}

// Lte matches records whose field is <= value.
func Lte(field string, value any) *Filter {
	return &Filter{Op: OpLte, Field: field, Value: value}
}

// And is the conjunction of filters.
func And(filters ...*Filter) *Filter {
	return &Filter{Op: OpAnd, Filters: filters}
}

// Or is the disjunction of filters.
func Or(filters ...*Filter) *Filter {
	return &Filter{Op: OpOr, Filters: filters}
}

// Not negates f.
func Not(f *Filter) *Filter {
	return &Filter{Op: OpNot, Filters: []*Filter{f}}
}

// IsLeaf reports whether f compares a single field.
func (f *Filter) IsLeaf() bool {
	switch f.Op {
	case OpEq, OpContains, OpGte, OpLte:
		return true
	}
	return false
}

// Validate checks the filter tree is well formed.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	switch f.Op {
	case OpEq, OpContains, OpGte, OpLte:
		if f.Field == "" {
			return fmt.Errorf("filter %s: field is required", f.Op)
		}
		return nil
	case OpAnd, OpOr:
		if len(f.Filters) == 0 {
			return fmt.Errorf("filter %s: at least one operand is required", f.Op)
		}
	case OpNot:
		if len(f.Filters) != 1 {
			return fmt.Errorf("filter @not: exactly one operand is required")
		}
	default:
		return fmt.Errorf("unknown filter operator %q", f.Op)
	}
	for _, child := range f.Filters {
		if child == nil {
			return fmt.Errorf("filter %s: nil operand", f.Op)
		}
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON encodes the filter in Cortex Search syntax, e.g.
// {"@and":[{"@eq":{"language":"English"}}]}.
func (f *Filter) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch f.Op {
	case OpAnd, OpOr:
		return json.Marshal(map[string][]*Filter{string(f.Op): f.Filters})
	case OpNot:
		return json.Marshal(map[string]*Filter{string(f.Op): f.Filters[0]})
	default:
		return json.Marshal(map[string]map[string]any{
			string(f.Op): {f.Field: f.Value},
		})
	}
}
