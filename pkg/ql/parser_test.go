package ql

import "testing"

func TestParseComparison(t *testing.T) {
	expr, err := Parse(`$etag='abc123'`)
	t.Run("parses without error", func(t *testing.T) {
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
	})
	t.Run("produces a Comparison", func(t *testing.T) {
		cmp, ok := expr.(Comparison)
		if !ok {
			t.Fatalf("expected Comparison, got %T", expr)
		}
		if cmp.Op != OpEq {
			t.Errorf("expected op =, got %s", cmp.Op)
		}
		field, ok := cmp.Left.(Field)
		if !ok || field.Name != "etag" {
			t.Errorf("expected $etag field, got %#v", cmp.Left)
		}
		lit, ok := cmp.Right.(Literal)
		if !ok || lit.Str != "abc123" {
			t.Errorf("expected literal abc123, got %#v", cmp.Right)
		}
	})
}

func TestParseFunctions(t *testing.T) {
	cases := []string{
		"exists()",
		"not_exists()",
		"starts_with($id,'data/')",
		"starts_with_delimited($id,'data/','/')",
	}
	for _, src := range cases {
		src := src
		t.Run(src, func(t *testing.T) {
			expr, err := Parse(src)
			if err != nil {
				t.Fatalf("parse %q failed: %v", src, err)
			}
			if _, ok := expr.(Function); !ok {
				t.Fatalf("expected Function, got %T", expr)
			}
		})
	}
}

func TestParseAndOrPrecedence(t *testing.T) {
	expr, err := Parse(`exists() AND $modified > @p1 OR NOT exists()`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	// OR should be the outermost node since it binds loosest.
	or, ok := expr.(Or)
	if !ok {
		t.Fatalf("expected top-level Or, got %T", expr)
	}
	if _, ok := or.Left.(And); !ok {
		t.Errorf("expected left side of Or to be And, got %T", or.Left)
	}
	if _, ok := or.Right.(Not); !ok {
		t.Errorf("expected right side of Or to be Not, got %T", or.Right)
	}
}

func TestCompileMatchConditionEtagWildcard(t *testing.T) {
	expr, err := Parse(`$etag='*'`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	cond, err := CompileMatchCondition(expr, nil)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if cond.Exists == nil || !*cond.Exists {
		t.Errorf("expected $etag='*' to compile to Exists=true, got %#v", cond)
	}
}

func TestCompileMatchConditionPreconditionSet(t *testing.T) {
	expr, err := Parse(`not_exists()`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	cond, err := CompileMatchCondition(expr, nil)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if cond.Exists == nil || *cond.Exists {
		t.Errorf("expected not_exists() to compile to Exists=false, got %#v", cond)
	}
}

func TestCompileListingPredicateDelimited(t *testing.T) {
	expr, err := Parse(`starts_with_delimited($id,'data/','/')`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	pred, err := CompileListingPredicate(expr, nil)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if pred.Prefix != "data/" || pred.Delimiter != "/" {
		t.Errorf("unexpected predicate: %#v", pred)
	}
}

func TestCompileListingPredicateRejectsUnsupportedShapes(t *testing.T) {
	expr, err := Parse(`$etag='x'`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if _, err := CompileListingPredicate(expr, nil); err == nil {
		t.Errorf("expected an error compiling an etag comparison as a listing predicate")
	}
}
