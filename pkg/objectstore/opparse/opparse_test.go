package opparse

import "testing"

func TestFromMapExtractsNeutralFields(t *testing.T) {
	args, err := FromMap(map[string]any{
		"id":         "a/b",
		"collection": "docs",
		"limit":      float64(10),
		"custom":     "passthrough",
	})
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	if args.ID != "a/b" || args.Collection != "docs" || args.Limit != 10 {
		t.Fatalf("unexpected neutral fields: %#v", args)
	}
	if args.NParams["custom"] != "passthrough" {
		t.Errorf("expected unknown key to pass through to NParams, got %#v", args.NParams)
	}
}

func TestFromMapCompilesWhereIntoMatchCondition(t *testing.T) {
	args, err := FromMap(map[string]any{
		"id":    "a",
		"where": `$etag='*'`,
	})
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	if args.Match.Exists == nil || !*args.Match.Exists {
		t.Fatalf("expected $etag='*' to compile to Exists=true, got %#v", args.Match)
	}
}

func TestFromMapRejectsBadID(t *testing.T) {
	if _, err := FromMap(map[string]any{"id": 5}); err == nil {
		t.Fatalf("expected an error for a non-string id")
	}
}

func TestQueryPredicateCompilesListingShape(t *testing.T) {
	pred, err := QueryPredicate(`starts_with($id,'data/')`, nil)
	if err != nil {
		t.Fatalf("QueryPredicate failed: %v", err)
	}
	if pred.Prefix != "data/" {
		t.Errorf("expected prefix data/, got %#v", pred)
	}
}
