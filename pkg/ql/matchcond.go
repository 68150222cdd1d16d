package ql

import (
	"fmt"

	"github.com/x8labs/cloudcore/pkg/model"
)

// CompileMatchCondition compiles the restricted where-subset usable as a
// pre/post-condition on a single object: exists()/not_exists(), $etag
// comparisons, $id version comparisons, and $modified comparisons (spec §3,
// §6). Anything outside that subset returns an error; callers surface it as
// apierr.BadRequest.
func CompileMatchCondition(expr Expression, params Params) (model.MatchCondition, error) {
	var out model.MatchCondition
	if err := compileMatchTerm(expr, params, &out); err != nil {
		return model.MatchCondition{}, err
	}
	return out, nil
}

func compileMatchTerm(expr Expression, params Params, out *model.MatchCondition) error {
	switch e := expr.(type) {
	case And:
		if err := compileMatchTerm(e.Left, params, out); err != nil {
			return err
		}
		return compileMatchTerm(e.Right, params, out)
	case Function:
		switch e.Name {
		case "exists":
			t := true
			out.Exists = &t
			return nil
		case "not_exists":
			f := false
			out.Exists = &f
			return nil
		default:
			return fmt.Errorf("ql: function %q is not valid in a match condition", e.Name)
		}
	case Comparison:
		field, ok := e.Left.(Field)
		if !ok {
			return fmt.Errorf("ql: match condition comparisons must start with a $field")
		}
		lit, ok, err := literalOf(e.Right, params)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("ql: match condition right-hand side must be a literal or bound parameter")
		}
		return bindFieldComparison(field.Name, e.Op, lit, out)
	default:
		return fmt.Errorf("ql: unsupported expression in match condition")
	}
}

func bindFieldComparison(field string, op Op, lit Literal, out *model.MatchCondition) error {
	switch field {
	case "etag":
		if lit.Kind != LiteralString {
			return fmt.Errorf("ql: $etag must compare to a string literal")
		}
		switch op {
		case OpEq:
			out.IfMatch = lit.Str
			if lit.Str == "*" {
				t := true
				out.Exists = &t
				out.IfMatch = ""
			}
			return nil
		case OpNe:
			out.IfNoneMatch = lit.Str
			return nil
		default:
			return fmt.Errorf("ql: $etag only supports = and !=")
		}
	case "modified":
		f, ok := asFloat(lit)
		if !ok {
			return fmt.Errorf("ql: $modified must compare to a number")
		}
		switch op {
		case OpGt, OpGe:
			out.IfModifiedSince = &f
			return nil
		case OpLt, OpLe:
			out.IfUnmodifiedSince = &f
			return nil
		default:
			return fmt.Errorf("ql: $modified only supports <, <=, >, >=")
		}
	case "id":
		if lit.Kind != LiteralString {
			return fmt.Errorf("ql: $id version comparisons must use a string literal")
		}
		switch op {
		case OpEq:
			out.IfVersionMatch = lit.Str
			return nil
		case OpNe:
			out.IfVersionNotMatch = lit.Str
			return nil
		default:
			return fmt.Errorf("ql: $id only supports = and != in a match condition")
		}
	default:
		return fmt.Errorf("ql: field %q is not valid in a match condition", field)
	}
}

func asFloat(lit Literal) (float64, bool) {
	switch lit.Kind {
	case LiteralFloat:
		return lit.Float, true
	case LiteralInt:
		return float64(lit.Int), true
	default:
		return 0, false
	}
}

// ParseWhereExists extracts the where_exists tri-state from a where string
// per spec §4.1 step 2: "exists()" -> true, "not_exists()" -> false,
// anything else -> nil (a server-side condition, passed through where
// supported or refused).
func ParseWhereExists(where string) (*bool, error) {
	if where == "" {
		return nil, nil
	}
	expr, err := Parse(where)
	if err != nil {
		return nil, err
	}
	fn, ok := expr.(Function)
	if !ok {
		return nil, nil
	}
	switch fn.Name {
	case "exists":
		t := true
		return &t, nil
	case "not_exists":
		f := false
		return &f, nil
	default:
		return nil, nil
	}
}
