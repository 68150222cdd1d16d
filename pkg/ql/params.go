package ql

import "fmt"

// Params resolves @name references supplied out-of-band by the caller.
type Params map[string]any

func (p Params) resolve(name string) (Expression, error) {
	v, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("ql: unbound parameter @%s", name)
	}
	switch t := v.(type) {
	case string:
		return Literal{Kind: LiteralString, Str: t}, nil
	case int:
		return Literal{Kind: LiteralInt, Int: int64(t)}, nil
	case int64:
		return Literal{Kind: LiteralInt, Int: t}, nil
	case float64:
		return Literal{Kind: LiteralFloat, Float: t}, nil
	case nil:
		return Literal{Kind: LiteralNull}, nil
	default:
		return nil, fmt.Errorf("ql: unsupported parameter type for @%s: %T", name, v)
	}
}

// literalOf resolves an expression to a concrete Literal, binding any Param
// reference against params. Field references cannot be resolved this way.
func literalOf(e Expression, params Params) (Literal, bool, error) {
	switch v := e.(type) {
	case Literal:
		return v, true, nil
	case Param:
		resolved, err := params.resolve(v.Name)
		if err != nil {
			return Literal{}, false, err
		}
		lit, ok := resolved.(Literal)
		return lit, ok, nil
	default:
		return Literal{}, false, nil
	}
}
