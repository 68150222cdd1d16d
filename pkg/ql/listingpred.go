package ql

import (
	"fmt"
	"strings"
)

// ListingPredicate is the compiled form of a query `where` expression.
// Supported shapes (spec §4.2): starts_with($id, prefix),
// starts_with_delimited($id, prefix, delimiter), $id > v, $id < v.
// Anything else must raise BadRequest (the caller wraps CompileListingPredicate's
// error in apierr.BadRequest).
type ListingPredicate struct {
	Prefix    string
	Delimiter string // empty unless starts_with_delimited was used

	GreaterThan string
	LessThan    string
}

// CompileListingPredicate compiles a query where-expression into a
// ListingPredicate, or returns an error if the expression uses anything
// outside the restricted listing subset.
func CompileListingPredicate(expr Expression, params Params) (ListingPredicate, error) {
	var out ListingPredicate
	if expr == nil {
		return out, nil
	}
	switch e := expr.(type) {
	case Function:
		switch strings.ToLower(e.Name) {
		case "starts_with":
			prefix, err := requireIDPrefixCall(e, params)
			if err != nil {
				return out, err
			}
			out.Prefix = prefix
			return out, nil
		case "starts_with_delimited":
			if len(e.Args) != 3 {
				return out, fmt.Errorf("ql: starts_with_delimited takes ($id, prefix, delimiter)")
			}
			if !isIDField(e.Args[0]) {
				return out, fmt.Errorf("ql: starts_with_delimited's first argument must be $id")
			}
			prefixLit, ok, err := literalOf(e.Args[1], params)
			if err != nil {
				return out, err
			}
			if !ok || prefixLit.Kind != LiteralString {
				return out, fmt.Errorf("ql: starts_with_delimited's prefix must be a string")
			}
			delimLit, ok, err := literalOf(e.Args[2], params)
			if err != nil {
				return out, err
			}
			if !ok || delimLit.Kind != LiteralString {
				return out, fmt.Errorf("ql: starts_with_delimited's delimiter must be a string")
			}
			out.Prefix = prefixLit.Str
			out.Delimiter = delimLit.Str
			return out, nil
		default:
			return out, fmt.Errorf("ql: function %q is not a valid query predicate", e.Name)
		}
	case Comparison:
		field, ok := e.Left.(Field)
		if !ok || field.Name != "id" {
			return out, fmt.Errorf("ql: query comparisons must be on $id")
		}
		lit, ok, err := literalOf(e.Right, params)
		if err != nil {
			return out, err
		}
		if !ok || lit.Kind != LiteralString {
			return out, fmt.Errorf("ql: $id comparisons must use a string literal")
		}
		switch e.Op {
		case OpGt, OpGe:
			out.GreaterThan = lit.Str
			return out, nil
		case OpLt, OpLe:
			out.LessThan = lit.Str
			return out, nil
		default:
			return out, fmt.Errorf("ql: query only supports $id > v or $id < v")
		}
	default:
		return out, fmt.Errorf("ql: unsupported query predicate")
	}
}

func requireIDPrefixCall(fn Function, params Params) (string, error) {
	if len(fn.Args) != 2 {
		return "", fmt.Errorf("ql: starts_with takes ($id, prefix)")
	}
	if !isIDField(fn.Args[0]) {
		return "", fmt.Errorf("ql: starts_with's first argument must be $id")
	}
	lit, ok, err := literalOf(fn.Args[1], params)
	if err != nil {
		return "", err
	}
	if !ok || lit.Kind != LiteralString {
		return "", fmt.Errorf("ql: starts_with's prefix must be a string literal")
	}
	return lit.Str, nil
}

func isIDField(e Expression) bool {
	f, ok := e.(Field)
	return ok && f.Name == "id"
}
