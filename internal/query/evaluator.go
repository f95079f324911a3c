package query

import "fmt"

// ParseFilter compiles a textual filter expression (see the package doc
// comment for the grammar) into the same Filter tree a caller could build
// by hand. This is the DSL `cmd/aquadoggod query` accepts; library callers
// are free to skip it and construct a Query directly.
func ParseFilter(input string) (*Filter, error) {
	node, err := Parse(input)
	if err != nil {
		return nil, fmt.Errorf("query: parse filter: %w", err)
	}
	return nodeToFilter(node)
}

func nodeToFilter(n Node) (*Filter, error) {
	switch v := n.(type) {
	case *ComparisonNode:
		return &Filter{Field: v.Field, Op: v.Op, Value: v.Value, Values: v.Values}, nil
	case *AndNode:
		left, err := nodeToFilter(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := nodeToFilter(v.Right)
		if err != nil {
			return nil, err
		}
		return &Filter{And: []*Filter{left, right}}, nil
	case *OrNode:
		left, err := nodeToFilter(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := nodeToFilter(v.Right)
		if err != nil {
			return nil, err
		}
		return &Filter{Or: []*Filter{left, right}}, nil
	case *NotNode:
		inner, err := nodeToFilter(v.Operand)
		if err != nil {
			return nil, err
		}
		return negate(inner), nil
	default:
		return nil, fmt.Errorf("query: unsupported AST node %T", n)
	}
}

// negate pushes a NOT down via De Morgan's laws until it sits on a leaf,
// so the planner never has to reason about negated groups.
func negate(f *Filter) *Filter {
	if len(f.And) == 2 {
		return &Filter{Or: []*Filter{negate(f.And[0]), negate(f.And[1])}}
	}
	if len(f.Or) == 2 {
		return &Filter{And: []*Filter{negate(f.Or[0]), negate(f.Or[1])}}
	}
	neg := *f
	neg.Not = !neg.Not
	return &neg
}
